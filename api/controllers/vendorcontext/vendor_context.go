package vendorcontext

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlements-backend/api/middleware"
	"github.com/angelmondragon/settlements-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlements-backend/pkg/errors"
)

// ResolveVendorStoreID extracts the active store and enforces vendor access.
func ResolveVendorStoreID(r *http.Request) (uuid.UUID, error) {
	ctx := r.Context()
	storeID := middleware.StoreIDFromContext(ctx)
	if storeID == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "store context required")
	}

	if middleware.StoreTypeFromContext(ctx) != string(enums.StoreTypeVendor) {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor access required")
	}

	id, err := uuid.Parse(storeID)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid store id")
	}
	return id, nil
}
