package config

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

type RelayConfig interface {
	GetDepositMethod() string
	GetWithdrawMethod() string
	GetCodeTTL() time.Duration
	GetConsumeOnWithdraw() bool
}

type Relay struct {
	DepositMethod     string        `env:"RELAY_DEPOSIT_METHOD" envDefault:"GET"`
	CodeTTL           time.Duration `env:"RELAY_CODE_TTL" envDefault:"10m"`
	ConsumeOnWithdraw bool          `env:"RELAY_CONSUME_ON_WITHDRAW" envDefault:"true"`
}

var _ RelayConfig = Relay{}

// GetDepositMethod is the verb the provider redirect arrives on. Withdraw
// uses the other one.
func (r Relay) GetDepositMethod() string {
	return strings.ToUpper(r.DepositMethod)
}

func (r Relay) GetWithdrawMethod() string {
	if r.GetDepositMethod() == http.MethodPost {
		return http.MethodGet
	}
	return http.MethodPost
}

func (r Relay) GetCodeTTL() time.Duration {
	return r.CodeTTL
}

func (r Relay) GetConsumeOnWithdraw() bool {
	return r.ConsumeOnWithdraw
}

func (r Relay) validate() error {
	switch r.GetDepositMethod() {
	case http.MethodGet, http.MethodPost:
	default:
		return fmt.Errorf("RELAY_DEPOSIT_METHOD must be GET or POST, got %q", r.DepositMethod)
	}
	if r.CodeTTL <= 0 {
		return fmt.Errorf("RELAY_CODE_TTL must be positive, got %s", r.CodeTTL)
	}
	return nil
}
