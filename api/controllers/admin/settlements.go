package admin

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow/api/controllers/orders"
	"github.com/angelmondragon/orderflow/api/responses"
	"github.com/angelmondragon/orderflow/api/validators"
	"github.com/angelmondragon/orderflow/internal/attachments"
	"github.com/angelmondragon/orderflow/internal/settlement"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/logger"
	"github.com/angelmondragon/orderflow/pkg/pagination"
)

type sellerTransferRequest struct {
	SellerID string `json:"seller_id" validate:"required,uuid"`
	ProofRef string `json:"proof_ref" validate:"required,max=1024"`
	Notes    string `json:"notes" validate:"max=500"`
}

type sellerTransfersRequest struct {
	Transfers []sellerTransferRequest `json:"transfers" validate:"required,min=1,dive"`
}

// RecordSellerTransfers commits the payout proofs for every seller of an order
// at once. A request missing any seller is refused without writing anything.
func RecordSellerTransfers(svc settlement.Service, resolver *attachments.Resolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := orders.ParseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req sellerTransfersRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		proofs := make(map[uuid.UUID]settlement.TransferProof, len(req.Transfers))
		for i, transfer := range req.Transfers {
			sellerID := uuid.MustParse(transfer.SellerID)
			if _, dup := proofs[sellerID]; dup {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "duplicate seller in transfers").
					WithDetails(map[string]any{"index": i, "seller_id": sellerID}))
				return
			}
			ref := validators.SanitizeString(transfer.ProofRef, 1024)
			if err := resolver.Verify(r.Context(), ref); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			proofs[sellerID] = settlement.TransferProof{
				Ref:   ref,
				Notes: validators.SanitizeString(transfer.Notes, 500),
			}
		}

		ctx := logg.WithOrderID(r.Context(), orderID.String())
		result, err := svc.RecordSellerTransfers(ctx, settlement.RecordTransfersInput{
			OrderID: orderID,
			Proofs:  proofs,
			Actor:   orders.ActorFrom(r),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		writeSettlement(w, r, result, resolver, logg)
	}
}

// Settlement returns the per-seller payout state of an order.
func Settlement(svc settlement.Service, resolver *attachments.Resolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := orders.ParseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.GetSettlement(r.Context(), orderID, orders.ActorFrom(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		writeSettlement(w, r, result, resolver, logg)
	}
}

// PendingSettlements pages through completed transfer orders still owed to sellers.
func PendingSettlements(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListPendingTransfers(r.Context(), pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, list)
	}
}

func writeSettlement(w http.ResponseWriter, r *http.Request, result *settlement.Settlement, resolver *attachments.Resolver, logg *logger.Logger) {
	for i := range result.Sellers {
		url, err := resolver.ResolvePtr(result.Sellers[i].TransferProofRef)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve transfer proof"))
			return
		}
		result.Sellers[i].TransferProofURL = url
	}
	responses.WriteSuccess(w, result)
}
