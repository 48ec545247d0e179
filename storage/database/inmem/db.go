package inmemdb

import (
	"sync"

	"github.com/educonnect/backend/core/donation"
	"github.com/educonnect/backend/core/payment"
	"github.com/educonnect/backend/core/request"
	"github.com/educonnect/backend/core/user"
)

type (
	DB struct {
		user     *userTable
		donation *donationTable
		request  *requestTable
		payment  *paymentTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	donationTable struct {
		sync.RWMutex
		table map[string]*donation.Donation
	}

	requestTable struct {
		sync.RWMutex
		table map[string]*request.Request
	}

	paymentTable struct {
		sync.RWMutex
		table map[string]*payment.Payment
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:     &userTable{table: make(map[string]*user.User)},
		donation: &donationTable{table: make(map[string]*donation.Donation)},
		request:  &requestTable{table: make(map[string]*request.Request)},
		payment:  &paymentTable{table: make(map[string]*payment.Payment)},
	}
	return db, nil
}
