package state

import (
	"fatorch/src/services/email"
	"fatorch/src/services/presence"
)

type Services struct {
	Presence *presence.Service
	Email    *email.Service
}
