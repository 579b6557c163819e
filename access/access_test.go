package access

import (
	"testing"

	"rental-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeCustomer() Principal {
	return Principal{
		UserID:        7,
		Authenticated: true,
		Active:        true,
		EmailVerified: true,
		Status:        models.ProfileComplete,
		Type:          models.UserCustomer,
	}
}

func TestActive_OrderOfChecks(t *testing.T) {
	assert.Nil(t, Active(activeCustomer()))

	d := Active(Anonymous)
	require.NotNil(t, d)
	assert.True(t, d.Unauthenticated)

	p := activeCustomer()
	p.Active = false
	p.EmailVerified = false
	assert.Equal(t, "Your account is not active", Active(p).Message)

	p = activeCustomer()
	p.EmailVerified = false
	assert.Equal(t, "Your email is not verified", Active(p).Message)

	p = activeCustomer()
	p.Status = models.ProfilePendingExtraData
	d = Active(p)
	require.NotNil(t, d)
	assert.Equal(t, models.ProfilePendingExtraData, d.Details["userStatus"])
}

func TestAdmin(t *testing.T) {
	assert.NotNil(t, Admin(activeCustomer()))

	p := activeCustomer()
	p.Type = models.UserAdmin
	assert.Nil(t, Admin(p))

	p = activeCustomer()
	p.Superuser = true
	assert.Nil(t, Admin(p))
}

func TestOwnerOrAdmin(t *testing.T) {
	owner := uint(7)
	other := uint(8)

	assert.Nil(t, OwnerOrAdmin(&owner)(activeCustomer()))
	assert.NotNil(t, OwnerOrAdmin(&other)(activeCustomer()))
	assert.NotNil(t, OwnerOrAdmin(nil)(activeCustomer()))

	admin := activeCustomer()
	admin.Type = models.UserAdmin
	assert.Nil(t, OwnerOrAdmin(nil)(admin))
}

func TestCheck_FirstDenialWins(t *testing.T) {
	p := activeCustomer()
	p.Active = false
	d := Check(p, Active, Admin)
	require.NotNil(t, d)
	assert.Equal(t, "error.accountInactive", d.Code)

	assert.Nil(t, Check(activeCustomer(), Authenticated, SelfOrSuperuser(7)))
	assert.NotNil(t, Check(activeCustomer(), SelfOrSuperuser(9)))
}

func TestFromUser(t *testing.T) {
	p := FromUser(models.User{ID: 3, IsActive: true, Type: models.UserAdmin})
	assert.True(t, p.Authenticated)
	assert.True(t, p.IsAdmin())
	assert.Equal(t, uint(3), p.UserID)
}
