package snmpworker

import (
	"context"
	"sync"
	"time"

	"github.com/oltfleet/pollerd/internal/domain"
)

// FakeWorker is a deterministic, programmable Worker for tests.
type FakeWorker struct {
	mu        sync.Mutex
	Results   []Result // consumed in order per call; last entry repeats once exhausted
	Errors    []error
	Delay     time.Duration
	calls     int
	OnExecute func(opType domain.OperationType, oid string)
}

func (f *FakeWorker) Execute(ctx context.Context, endpoint domain.SNMPEndpoint, opType domain.OperationType, oid string, timeout time.Duration) (Result, error) {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	f.mu.Unlock()

	if f.OnExecute != nil {
		f.OnExecute(opType, oid)
	}

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return Result{ErrorKind: domain.ErrorTimeout}, ctx.Err()
		}
	}

	var res Result
	if len(f.Results) > 0 {
		if idx < len(f.Results) {
			res = f.Results[idx]
		} else {
			res = f.Results[len(f.Results)-1]
		}
	}
	var err error
	if len(f.Errors) > 0 {
		if idx < len(f.Errors) {
			err = f.Errors[idx]
		} else {
			err = f.Errors[len(f.Errors)-1]
		}
	}
	return res, err
}

// Calls returns how many times Execute has been invoked.
func (f *FakeWorker) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
