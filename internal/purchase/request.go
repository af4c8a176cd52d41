package purchase

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// MaxQuantity bounds a single line so quantity*price cannot overflow and the
// value fits the stock column.
const MaxQuantity = 1_000_000

type Item struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"qty" validate:"gt=0,lte=1000000"`
}

type Request struct {
	BusinessID     uuid.UUID `json:"businessId" validate:"required"`
	IdempotencyKey uuid.UUID `json:"idempotencyKey" validate:"required"`
	Items          []Item    `json:"items" validate:"required,min=1,max=100,dive"`
}

// normalize merges repeated product ids, summing their quantities. The first
// occurrence decides a product's position.
func normalize(items []Item) []Item {
	index := make(map[uuid.UUID]int, len(items))
	out := make([]Item, 0, len(items))

	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(out)
		out = append(out, item)
	}

	return out
}

func productIDs(items []Item) []uuid.UUID {
	ids := make([]uuid.UUID, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}
	return ids
}

// fingerprint identifies the logical request independent of item order.
func fingerprint(businessID uuid.UUID, items []Item) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = fmt.Sprintf("%s:%d", item.ProductID, item.Quantity)
	}
	sort.Strings(parts)

	sum := sha256.Sum256([]byte(businessID.String() + "|" + strings.Join(parts, ",")))
	return hex.EncodeToString(sum[:])
}

// mulCents multiplies a quantity by a unit price, reporting overflow.
func mulCents(quantity int, unitPriceCents int64) (int64, bool) {
	q := int64(quantity)
	if q != 0 && unitPriceCents > math.MaxInt64/q {
		return 0, false
	}
	return q * unitPriceCents, true
}
