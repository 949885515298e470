package storefakes

import (
	"context"
	"sync"

	"github.com/tenauth/go-identity-server/otp"
)

var _ otp.Store = (*FakeOtpStore)(nil)

// FakeOtpStore is an in-memory otp.Store for tests and standalone runs.
type FakeOtpStore struct {
	records map[string]*otp.Otp
	lock    sync.Mutex
}

func NewFakeOtpStore() *FakeOtpStore {
	return &FakeOtpStore{records: make(map[string]*otp.Otp)}
}

func (s *FakeOtpStore) Save(_ context.Context, record *otp.Otp) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	copied := *record
	s.records[record.ID] = &copied
	return nil
}

func (s *FakeOtpStore) Get(_ context.Context, id string) (*otp.Otp, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	record, ok := s.records[id]
	if !ok || record.Expired(otp.NowTimeFunc()) {
		return nil, otp.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

// Consume deletes the record if the code matches. The lock makes the
// compare-and-delete atomic, so only one concurrent consumer wins.
func (s *FakeOtpStore) Consume(_ context.Context, id, code string) (*otp.Otp, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	record, ok := s.records[id]
	if !ok || record.Expired(otp.NowTimeFunc()) {
		return nil, otp.ErrNotFound
	}
	if record.Code != code {
		return nil, otp.ErrCodeMismatch
	}
	delete(s.records, id)
	return record, nil
}
