package auth

import (
	"sort"
	"testing"
	"time"

	"retail-core/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy(t *testing.T) {
	tests := []struct {
		role   string
		action Action
		want   bool
	}{
		{models.RoleAdmin, UsersManage, true},
		{models.RoleAdmin, OrdersDelete, true},
		{models.RoleManager, ReturnsDecide, true},
		{models.RoleManager, OrdersCreate, false},
		{models.RoleManager, UsersManage, false},
		{models.RoleSales, OrdersCreate, true},
		{models.RoleSales, ProductsWrite, false},
		{models.RoleViewer, OrdersRead, true},
		{models.RoleViewer, ReturnsCreate, true},
		{models.RoleViewer, OrdersCreate, false},
		{"ghost", ProductsRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.role+"/"+string(tt.action), func(t *testing.T) {
			assert.Equal(t, tt.want, Allowed(tt.role, tt.action))
		})
	}
}

func TestPermissionsFor(t *testing.T) {
	admin := PermissionsFor(models.RoleAdmin)
	assert.Len(t, admin, len(allActions))
	assert.True(t, sort.SliceIsSorted(admin, func(i, j int) bool { return admin[i] < admin[j] }))

	viewer := PermissionsFor(models.RoleViewer)
	assert.ElementsMatch(t, readOnly, viewer)
	assert.Empty(t, PermissionsFor("ghost"))
}

func TestTokenRoundTrip(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)
	user := &models.User{ID: 7, Username: "jane", Role: models.RoleSales}

	token, expires, err := m.Generate(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "jane", claims.Username)
	assert.Equal(t, models.RoleSales, claims.Role)
	assert.Equal(t, issuer, claims.Issuer)
}

func TestTokenRejected(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)
	token, _, err := m.Generate(&models.User{ID: 1, Username: "jane", Role: models.RoleAdmin})
	require.NoError(t, err)

	_, err = m.Validate("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = m.Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewTokenManager("other-secret", time.Hour).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	later := NewTokenManager("test-secret", time.Hour)
	later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = later.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewRefreshToken(t *testing.T) {
	a, err := NewRefreshToken()
	require.NoError(t, err)
	b, err := NewRefreshToken()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
