package mail

import "github.com/stretchr/testify/mock"

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendActivationEmail(to, name, activationURL string) error {
	args := m.Called(to, name, activationURL)
	return args.Error(0)
}
