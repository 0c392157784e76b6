// Package currency keeps a currency->USD rate table warm for best-order
// comparison and re-elects stored best orders when rates move.
package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yungbote/nftbridge-backend/internal/logger"
	"github.com/yungbote/nftbridge-backend/internal/services/bestorder"
	"github.com/yungbote/nftbridge-backend/internal/utils"
)

// Snapshot persists the last good rate table across restarts.
type Snapshot interface {
	Store(ctx context.Context, rates map[string]decimal.Decimal) error
	Load(ctx context.Context) (map[string]decimal.Decimal, error)
}

// Service polls the rate oracle and serves the last known good table. A
// failed poll never clears rates: stale beats empty.
type Service struct {
	oracleURL    string
	pollInterval time.Duration
	httpClient   *http.Client
	snapshot     Snapshot
	onUpdate     func()

	mu    sync.RWMutex
	rates bestorder.Rates

	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *logger.Logger
}

// NewService reads CURRENCY_ORACLE_URL and CURRENCY_POLL_INTERVAL from the
// environment. onUpdate fires after the table changed; snapshot may be nil.
func NewService(snapshot Snapshot, onUpdate func(), baseLog *logger.Logger) (*Service, error) {
	oracleURL := utils.GetEnv("CURRENCY_ORACLE_URL", "", baseLog)
	if oracleURL == "" {
		return nil, fmt.Errorf("missing CURRENCY_ORACLE_URL")
	}
	return &Service{
		oracleURL:    oracleURL,
		pollInterval: utils.GetEnvAsDuration("CURRENCY_POLL_INTERVAL", time.Minute, baseLog),
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		snapshot:     snapshot,
		onUpdate:     onUpdate,
		rates:        bestorder.Rates{},
		log:          baseLog.With("service", "CurrencyService"),
	}, nil
}

// SetOnUpdate installs the table-changed callback. Must be called before
// Start; exists because the recalculation job depends on this service.
func (s *Service) SetOnUpdate(fn func()) {
	s.onUpdate = fn
}

// Rates returns the last known good table. Never nil.
func (s *Service) Rates() bestorder.Rates {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rates
}

// Start seeds the table from the snapshot, fetches once, and begins polling.
func (s *Service) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.snapshot != nil {
		cached, err := s.snapshot.Load(ctx)
		if err != nil {
			s.log.Warn("rates snapshot load failed", "error", err)
		} else if len(cached) > 0 {
			s.mu.Lock()
			s.rates = cached
			s.mu.Unlock()
			s.log.Info("rates seeded from snapshot", "currencies", len(cached))
		}
	}

	if err := s.fetch(ctx); err != nil {
		s.log.Warn("initial rates fetch failed", "error", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.log.Info("rates polling stopped")
				return
			case <-ticker.C:
				if err := s.fetch(ctx); err != nil {
					s.log.Warn("rates fetch failed, keeping last known good", "error", err)
				}
			}
		}
	}()
	return nil
}

func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
		s.wg.Wait()
	}
}

type oracleResponse struct {
	Rates map[string]decimal.Decimal `json:"rates"`
}

func (s *Service) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.oracleURL+"/v1/rates", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rate oracle http %d: %s", resp.StatusCode, string(raw))
	}

	var payload oracleResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if len(payload.Rates) == 0 {
		return fmt.Errorf("rate oracle returned empty table")
	}

	next := make(bestorder.Rates, len(payload.Rates))
	for currency, rate := range payload.Rates {
		if rate.IsPositive() {
			next[currency] = rate
		}
	}

	s.mu.Lock()
	changed := !sameRates(s.rates, next)
	s.rates = next
	s.mu.Unlock()

	if !changed {
		return nil
	}
	s.log.Info("rate table updated", "currencies", len(next))
	if s.snapshot != nil {
		if err := s.snapshot.Store(ctx, next); err != nil {
			s.log.Warn("rates snapshot store failed", "error", err)
		}
	}
	if s.onUpdate != nil {
		s.onUpdate()
	}
	return nil
}

func sameRates(a, b bestorder.Rates) bool {
	if len(a) != len(b) {
		return false
	}
	for currency, rate := range a {
		other, ok := b[currency]
		if !ok || !rate.Equal(other) {
			return false
		}
	}
	return true
}
