// Package fixtures loads seed data from YAML and applies it through the
// capture service and the consistency engine, so seeded data obeys the same
// cross-entity rules as API traffic.
package fixtures

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/paywatch/paywatch/internal/core/domain"
	"github.com/paywatch/paywatch/internal/core/ports"
)

// Seed is the root of a fixture file.
type Seed struct {
	Devices  []DeviceFixture  `yaml:"devices"`
	Payments []PaymentFixture `yaml:"payments"`
	Accounts []AccountFixture `yaml:"accounts"`
}

type DeviceFixture struct {
	Code         string              `yaml:"code"`
	Model        string              `yaml:"model"`
	Manufacturer string              `yaml:"manufacturer"`
	Status       domain.DeviceStatus `yaml:"status"`
}

type PaymentFixture struct {
	Device    string    `yaml:"device"`
	Sender    string    `yaml:"sender"`
	Amount    float64   `yaml:"amount"`
	Content   string    `yaml:"content"`
	Timestamp time.Time `yaml:"timestamp"`
}

type AccountFixture struct {
	Username string               `yaml:"username"`
	Password string               `yaml:"password"`
	Device   string               `yaml:"device"`
	Status   domain.AccountStatus `yaml:"status"`
}

// Result counts what Apply wrote.
type Result struct {
	Devices  int
	Payments int
	Accounts int
}

// Load reads a fixture file from path.
func Load(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a fixture document. Unknown keys are rejected.
func Decode(r io.Reader) (*Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	return &seed, nil
}

// Apply writes devices, then payments, then accounts. Devices are approved or
// rejected before accounts link to them; an account status other than
// inactive is reached by toggling.
func Apply(ctx context.Context, seed *Seed, capture ports.CaptureService, engine ports.ConsistencyEngine) (Result, error) {
	var res Result

	for _, d := range seed.Devices {
		dev, created, err := capture.RegisterDevice(ctx, ports.RegisterDeviceInput{
			Code:         d.Code,
			Model:        d.Model,
			Manufacturer: d.Manufacturer,
		})
		if err != nil {
			return res, fmt.Errorf("device %s: %w", d.Code, err)
		}
		if d.Status != "" && d.Status != dev.Status && dev.LinkedAccount == nil {
			if err := engine.UpdateDeviceStatus(ctx, d.Code, d.Status); err != nil {
				return res, fmt.Errorf("device %s status: %w", d.Code, err)
			}
		}
		if created {
			res.Devices++
		}
	}

	for i, p := range seed.Payments {
		if _, err := capture.RecordPayment(ctx, ports.RecordPaymentInput{
			DeviceCode: p.Device,
			Sender:     p.Sender,
			Amount:     p.Amount,
			Content:    p.Content,
			Timestamp:  p.Timestamp,
		}); err != nil {
			return res, fmt.Errorf("payment %d: %w", i, err)
		}
		res.Payments++
	}

	for _, a := range seed.Accounts {
		acct, err := engine.CreateAccount(ctx, ports.CreateAccountInput{
			Username:   a.Username,
			Password:   a.Password,
			DeviceCode: a.Device,
		})
		if err != nil {
			return res, fmt.Errorf("account %s: %w", a.Username, err)
		}
		status := acct.Status
		for hops := 0; a.Status != "" && status != a.Status && hops < 2; hops++ {
			if status, err = engine.ToggleAccountStatus(ctx, acct.Username); err != nil {
				return res, fmt.Errorf("account %s status: %w", a.Username, err)
			}
		}
		if a.Status != "" && status != a.Status {
			return res, fmt.Errorf("account %s: status %q is not reachable", a.Username, a.Status)
		}
		res.Accounts++
	}

	return res, nil
}
