package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Session trading session of one owner. Replaced as a whole, never field by field.
type Session struct {
	Owner            common.Address `json:"owner"`
	ExecutionAccount common.Address `json:"executionAccount"`
	SessionKey       common.Address `json:"sessionKey"`
	EstablishedAt    time.Time      `json:"establishedAt"`
}

// Active reports whether the session is usable for execution.
func (s Session) Active() bool {
	return s.Owner != (common.Address{}) && s.SessionKey != (common.Address{})
}
