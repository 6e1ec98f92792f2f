package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockParlorRepository struct {
	mock.Mock
}

func (m *MockParlorRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockParlorRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockParlorRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockParlorRepository) GetAccountById(accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockParlorRepository) GetAccountByIdentity(usernameOrEmail string) (User, error) {
	args := m.Called(usernameOrEmail)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockParlorRepository) SetAvatar(accountId int, avatar string) error {
	args := m.Called(accountId, avatar)
	return args.Error(0)
}
func (m *MockParlorRepository) SetBanned(accountId int, banned bool) error {
	args := m.Called(accountId, banned)
	return args.Error(0)
}
func (m *MockParlorRepository) ListRooms(includePrivate bool) ([]Room, error) {
	args := m.Called(includePrivate)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockParlorRepository) GetRoomByName(name string) (Room, error) {
	args := m.Called(name)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockParlorRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockParlorRepository) CreateBan(ban Ban) error {
	args := m.Called(ban)
	return args.Error(0)
}
func (m *MockParlorRepository) DeleteBans(accountId int) error {
	args := m.Called(accountId)
	return args.Error(0)
}
func (m *MockParlorRepository) ActiveBan(accountId, roomId int) (Ban, error) {
	args := m.Called(accountId, roomId)
	return args.Get(0).(Ban), args.Error(1)
}
func (m *MockParlorRepository) CreateMute(mute Mute) error {
	args := m.Called(mute)
	return args.Error(0)
}
func (m *MockParlorRepository) ActiveMute(accountId, roomId int, now time.Time) (Mute, error) {
	args := m.Called(accountId, roomId, now)
	return args.Get(0).(Mute), args.Error(1)
}
func (m *MockParlorRepository) CreateMessage(msg Message) (Message, error) {
	args := m.Called(msg)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockParlorRepository) GetMessageById(messageId int) (Message, error) {
	args := m.Called(messageId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockParlorRepository) GetMessages(roomId, limit int) ([]Message, error) {
	args := m.Called(roomId, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockParlorRepository) CreateReaction(reaction Reaction) (Reaction, error) {
	args := m.Called(reaction)
	return args.Get(0).(Reaction), args.Error(1)
}
func (m *MockParlorRepository) CreatePin(pin PinnedMessage) (PinnedMessage, error) {
	args := m.Called(pin)
	return args.Get(0).(PinnedMessage), args.Error(1)
}
