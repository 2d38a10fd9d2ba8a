package telephony

import (
	"context"
	"sync"
)

type fakeProvider struct {
	mu sync.Mutex

	createErr   error
	callbackErr error
	fetchErr    error
	callID      string
	info        CallInfo

	created   []CreateCallRequest
	callbacks map[string]string
	fetches   int
}

func (p *fakeProvider) Name() string                          { return "fake" }
func (p *fakeProvider) HealthCheck(ctx context.Context) error { return nil }

func (p *fakeProvider) CreateCall(ctx context.Context, req CreateCallRequest) (CreateCallResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, req)
	if p.createErr != nil {
		return CreateCallResult{}, p.createErr
	}
	id := p.callID
	if id == "" {
		id = "CA00000000000000000000000000000001"
	}
	return CreateCallResult{CallID: id, Status: "queued"}, nil
}

func (p *fakeProvider) UpdateCallCallback(ctx context.Context, callID, callbackURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.callbacks == nil {
		p.callbacks = map[string]string{}
	}
	if p.callbackErr != nil {
		return p.callbackErr
	}
	p.callbacks[callID] = callbackURL
	return nil
}

func (p *fakeProvider) FetchCall(ctx context.Context, callID string) (CallInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetches++
	if p.fetchErr != nil {
		return CallInfo{}, p.fetchErr
	}
	info := p.info
	info.CallID = callID
	return info, nil
}
