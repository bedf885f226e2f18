package payload

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"playerhooks/internal/models"
)

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) GetUser(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *mockDirectory) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	args := m.Called(ctx, id)
	o, _ := args.Get(0).(*models.Order)
	return o, args.Error(1)
}

func (m *mockDirectory) GetProfile(ctx context.Context, userID int64) (map[string]string, error) {
	args := m.Called(ctx, userID)
	p, _ := args.Get(0).(map[string]string)
	return p, args.Error(1)
}

func TestBuildUser_BillingFallback(t *testing.T) {
	u := &models.User{ID: 7, Email: "", Username: "kai", FirstName: "Kai"}
	o := &models.Order{BillingEmail: "kai@example.com", BillingFirstName: "K", BillingLastName: "Tane"}

	obj := BuildUser(7, u, o)
	assert.Equal(t, "Kai", obj.FirstName)
	assert.Equal(t, "Tane", obj.LastName)
	assert.Equal(t, "kai@example.com", obj.Email)
	assert.Equal(t, "K", obj.BillingFirstName)

	plain := BuildUser(7, u, nil)
	assert.Empty(t, plain.Email)
	assert.Empty(t, plain.BillingEmail)
}

func TestBuildOrder_ItemsRoundTrip(t *testing.T) {
	o := &models.Order{
		ID:       1001,
		Status:   "completed",
		Total:    150,
		Currency: "EUR",
		Items: []models.OrderItem{
			{ID: 1, Name: "Registration", Quantity: 1, Total: 100, ProductID: 55},
			{ID: 2, Name: "Showcase", Quantity: 2, Total: 50, ProductID: 56},
			{ID: 3, Name: "Showcase again", Quantity: 1, Total: 0, ProductID: 55},
			{ID: 4, Name: "Fee", Quantity: 1, Total: 0, ProductID: 0},
		},
	}

	obj := BuildOrder(1001, o)
	require.Len(t, obj.Items, 4)
	assert.Equal(t, []int64{55, 56}, obj.ProductIDs)

	raw, err := json.Marshal(obj)
	require.NoError(t, err)

	var decoded struct {
		Items []struct {
			ID        int64   `json:"id"`
			Name      string  `json:"name"`
			Qty       int     `json:"qty"`
			Total     float64 `json:"total"`
			ProductID int64   `json:"product_id"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded.Items, len(o.Items))
	for i, it := range o.Items {
		assert.Equal(t, it.ID, decoded.Items[i].ID)
		assert.Equal(t, it.Name, decoded.Items[i].Name)
		assert.Equal(t, it.Quantity, decoded.Items[i].Qty)
		assert.Equal(t, it.Total, decoded.Items[i].Total)
		assert.Equal(t, it.ProductID, decoded.Items[i].ProductID)
	}
}

func TestBuildOrder_Unknown(t *testing.T) {
	obj := BuildOrder(9, nil)
	assert.Equal(t, int64(9), obj.OrderID)
	assert.Empty(t, obj.Status)
	assert.NotNil(t, obj.Items)
	assert.NotNil(t, obj.ProductIDs)

	raw, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"items":[]`)
	assert.Contains(t, string(raw), `"product_ids":[]`)
}

func TestBuildProfile_FixedKeys(t *testing.T) {
	p := BuildProfile(42, map[string]string{"first_name": "Ana", "unrelated": "x"})
	assert.Len(t, p, len(ProfileFields)+1)
	assert.Equal(t, int64(42), p["id"])
	assert.Equal(t, "Ana", p["first_name"])
	assert.Equal(t, "", p["passport"])
	_, ok := p["unrelated"]
	assert.False(t, ok)
}

func TestBuilder_LookupErrorsYieldZeroValues(t *testing.T) {
	dir := new(mockDirectory)
	ctx := context.Background()
	dir.On("GetUser", ctx, int64(5)).Return(nil, errors.New("platform down"))
	dir.On("GetOrder", ctx, int64(6)).Return(nil, errors.New("platform down"))
	dir.On("GetProfile", ctx, int64(5)).Return(nil, errors.New("platform down"))

	b := NewBuilder(dir, zerolog.Nop())

	u := b.User(ctx, 5, 6)
	assert.Equal(t, int64(5), u.ID)
	assert.Empty(t, u.Email)

	o := b.Order(ctx, 6)
	assert.Equal(t, int64(6), o.OrderID)
	assert.Empty(t, o.Items)

	p := b.Profile(ctx, 5)
	assert.Equal(t, int64(5), p["id"])

	dir.AssertExpectations(t)
}

func TestBuilder_SkipsLookupForZeroIDs(t *testing.T) {
	dir := new(mockDirectory)
	b := NewBuilder(dir, zerolog.Nop())
	ctx := context.Background()

	u := b.User(ctx, 0, 0)
	assert.Equal(t, int64(0), u.ID)
	_ = b.Order(ctx, 0)
	_ = b.Profile(ctx, 0)

	dir.AssertNotCalled(t, "GetUser", mock.Anything, mock.Anything)
	dir.AssertNotCalled(t, "GetOrder", mock.Anything, mock.Anything)
	dir.AssertNotCalled(t, "GetProfile", mock.Anything, mock.Anything)
}
