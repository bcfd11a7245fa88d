package mocks

import (
	"github.com/stretchr/testify/mock"

	"chat-presence/internal/models"
)

type ChatQueriesMock struct {
	mock.Mock
}

func (m *ChatQueriesMock) History(roomID string) []models.Message {
	args := m.Called(roomID)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list
}

func (m *ChatQueriesMock) Users() []models.Connection {
	args := m.Called()
	var list []models.Connection
	if val := args.Get(0); val != nil {
		list = val.([]models.Connection)
	}
	return list
}

func (m *ChatQueriesMock) RoomIDs() []string {
	args := m.Called()
	var list []string
	if val := args.Get(0); val != nil {
		list = val.([]string)
	}
	return list
}

type DelivererMock struct {
	mock.Mock
}

func (m *DelivererMock) Deliver(connIDs []string, event models.Outbound) error {
	args := m.Called(connIDs, event)
	return args.Error(0)
}

func (m *DelivererMock) DeliverAll(event models.Outbound) {
	m.Called(event)
}
