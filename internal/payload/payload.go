// Package payload assembles the normalized, schema-stable data objects carried in webhook bodies.
//
// Every builder returns all of its keys even when the source is missing, so receivers can rely
// on a fixed schema: strings default to "", numbers to 0 and lists to [].
package payload

import (
	"context"

	"github.com/rs/zerolog"

	"playerhooks/internal/models"
)

// SchemaVersion identifies the ProfileFields list. Bump it whenever that list changes.
const SchemaVersion = "2024-06"

// ProfileFields is the fixed set of profile keys included in every profile snapshot.
var ProfileFields = []string{
	"first_name", "last_name", "gender", "nation", "current_location_country",
	"height", "weight", "years", "months", "level", "league",
	"period_1", "club_1", "period_2", "club_2", "period_3", "club_3", "reason",
	"tournament_1", "tournament_2", "tournament_3",
	"main-position", "secondary-position",
	"interested_country", "passport",
	"v_links", "v_upload_id", "v_link",
	"p_profile", "p_photo_id",
	"_oval15_sole_rep", "_oval15_marketing_consent", "_oval15_approved",
}

// Directory looks up domain objects on the host platform.
// A nil result with a nil error means "not found".
type Directory interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	GetProfile(ctx context.Context, userID int64) (map[string]string, error)
}

// UserObject is the normalized user.
type UserObject struct {
	ID               int64  `json:"id"`
	Email            string `json:"email"`
	Username         string `json:"username"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	BillingEmail     string `json:"billing_email"`
	BillingFirstName string `json:"billing_first_name"`
	BillingLastName  string `json:"billing_last_name"`
}

// ItemObject is a normalized order line.
type ItemObject struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Qty       int     `json:"qty"`
	Total     float64 `json:"total"`
	ProductID int64   `json:"product_id"`
}

// OrderObject is the normalized order.
type OrderObject struct {
	OrderID          int64        `json:"order_id"`
	Status           string       `json:"status"`
	Total            float64      `json:"total"`
	Currency         string       `json:"currency"`
	Email            string       `json:"email"`
	CustomerID       int64        `json:"customer_id"`
	BillingFirstName string       `json:"billing_first_name"`
	BillingLastName  string       `json:"billing_last_name"`
	BillingPhone     string       `json:"billing_phone"`
	BillingCountry   string       `json:"billing_country"`
	BillingCity      string       `json:"billing_city"`
	Items            []ItemObject `json:"items"`
	ProductIDs       []int64      `json:"product_ids"`
	RegistrationUser int64        `json:"registration_user"`
}

// BuildUser normalizes u. When o is given its billing details are included and fill in
// any empty name or email.
func BuildUser(id int64, u *models.User, o *models.Order) UserObject {
	obj := UserObject{ID: id}
	if u != nil {
		obj.Email = u.Email
		obj.Username = u.Username
		obj.FirstName = u.FirstName
		obj.LastName = u.LastName
	}
	if o != nil {
		obj.BillingEmail = o.BillingEmail
		obj.BillingFirstName = o.BillingFirstName
		obj.BillingLastName = o.BillingLastName
		if obj.FirstName == "" {
			obj.FirstName = o.BillingFirstName
		}
		if obj.LastName == "" {
			obj.LastName = o.BillingLastName
		}
		if obj.Email == "" {
			obj.Email = o.BillingEmail
		}
	}
	return obj
}

// BuildOrder normalizes o. A nil order yields only the id.
func BuildOrder(id int64, o *models.Order) OrderObject {
	obj := OrderObject{
		OrderID:    id,
		Items:      []ItemObject{},
		ProductIDs: []int64{},
	}
	if o == nil {
		return obj
	}

	seen := make(map[int64]struct{})
	for _, it := range o.Items {
		obj.Items = append(obj.Items, ItemObject{
			ID:        it.ID,
			Name:      it.Name,
			Qty:       it.Quantity,
			Total:     it.Total,
			ProductID: it.ProductID,
		})
		if it.ProductID == 0 {
			continue
		}
		if _, ok := seen[it.ProductID]; !ok {
			seen[it.ProductID] = struct{}{}
			obj.ProductIDs = append(obj.ProductIDs, it.ProductID)
		}
	}

	obj.OrderID = o.ID
	obj.Status = o.Status
	obj.Total = o.Total
	obj.Currency = o.Currency
	obj.Email = o.BillingEmail
	obj.CustomerID = o.CustomerID
	obj.BillingFirstName = o.BillingFirstName
	obj.BillingLastName = o.BillingLastName
	obj.BillingPhone = o.BillingPhone
	obj.BillingCountry = o.BillingCountry
	obj.BillingCity = o.BillingCity
	obj.RegistrationUser = o.RegistrationUser
	return obj
}

// BuildProfile snapshots meta over ProfileFields.
func BuildProfile(userID int64, meta map[string]string) map[string]any {
	out := make(map[string]any, len(ProfileFields)+1)
	out["id"] = userID
	for _, k := range ProfileFields {
		out[k] = meta[k]
	}
	return out
}

// Builder resolves ids through a Directory and normalizes the results.
type Builder struct {
	dir    Directory
	logger zerolog.Logger
}

// NewBuilder returns a Builder backed by dir.
func NewBuilder(dir Directory, logger zerolog.Logger) *Builder {
	return &Builder{dir: dir, logger: logger.With().Str("component", "payload").Logger()}
}

// User builds the user object, enriched with billing details when orderID > 0.
func (b *Builder) User(ctx context.Context, userID, orderID int64) UserObject {
	var (
		u *models.User
		o *models.Order
	)
	if userID > 0 {
		u = b.user(ctx, userID)
	}
	if orderID > 0 {
		o = b.order(ctx, orderID)
	}
	return BuildUser(userID, u, o)
}

// Order builds the order object.
func (b *Builder) Order(ctx context.Context, orderID int64) OrderObject {
	if orderID <= 0 {
		return BuildOrder(orderID, nil)
	}
	return BuildOrder(orderID, b.order(ctx, orderID))
}

// Profile builds the profile snapshot.
func (b *Builder) Profile(ctx context.Context, userID int64) map[string]any {
	if userID <= 0 {
		return BuildProfile(userID, nil)
	}
	meta, err := b.dir.GetProfile(ctx, userID)
	if err != nil {
		b.logger.Warn().Err(err).Int64("user_id", userID).Msg("profile lookup failed")
	}
	return BuildProfile(userID, meta)
}

func (b *Builder) user(ctx context.Context, id int64) *models.User {
	u, err := b.dir.GetUser(ctx, id)
	if err != nil {
		b.logger.Warn().Err(err).Int64("user_id", id).Msg("user lookup failed")
		return nil
	}
	return u
}

func (b *Builder) order(ctx context.Context, id int64) *models.Order {
	o, err := b.dir.GetOrder(ctx, id)
	if err != nil {
		b.logger.Warn().Err(err).Int64("order_id", id).Msg("order lookup failed")
		return nil
	}
	return o
}
