package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"foodadmin/internal/model"
	mock_session "foodadmin/internal/session/mocks"
)

var staff = &model.User{
	ID:        "u-1",
	FirstName: "Ana",
	LastName:  "Souza",
	Email:     "ana@example.com",
	Role:      "admin",
}

func TestSession_GateWhileUnknown(t *testing.T) {
	s := New(nil, zap.NewNop(), nil)

	assert.Equal(t, StateUnknown, s.State())
	assert.ErrorIs(t, s.Require(), ErrUnresolved, "protected surfaces must not render before Resolve completes")
	assert.Nil(t, s.User())
}

func TestSession_Resolve(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(api *mock_session.MockAuthAPI)
		wantState State
	}{
		{
			name: "authenticated",
			setupMock: func(api *mock_session.MockAuthAPI) {
				api.EXPECT().Me(gomock.Any()).Return(staff, nil)
			},
			wantState: StateAuthenticated,
		},
		{
			name: "anonymous on unauthenticated error",
			setupMock: func(api *mock_session.MockAuthAPI) {
				api.EXPECT().Me(gomock.Any()).Return(nil, errors.New("401"))
			},
			wantState: StateAnonymous,
		},
		{
			name: "anonymous on empty identity",
			setupMock: func(api *mock_session.MockAuthAPI) {
				api.EXPECT().Me(gomock.Any()).Return(nil, nil)
			},
			wantState: StateAnonymous,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			api := mock_session.NewMockAuthAPI(ctrl)
			tc.setupMock(api)

			s := New(api, zap.NewNop(), nil)
			s.Resolve(context.Background())
			assert.Equal(t, tc.wantState, s.State())
		})
	}
}

func TestSession_ResolveRunsOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	api := mock_session.NewMockAuthAPI(ctrl)
	api.EXPECT().Me(gomock.Any()).Return(staff, nil).Times(1)

	s := New(api, zap.NewNop(), nil)
	s.Resolve(context.Background())
	s.Resolve(context.Background())
	assert.Equal(t, StateAuthenticated, s.State())
}

func TestSession_Login(t *testing.T) {
	t.Run("success authenticates and navigates home", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		api := mock_session.NewMockAuthAPI(ctrl)
		api.EXPECT().
			Login(gomock.Any(), "ana@example.com", "secret").
			Return(staff, "Welcome back!", nil)

		var nav []Route
		s := New(api, zap.NewNop(), func(r Route) { nav = append(nav, r) })

		require.NoError(t, s.Login(context.Background(), "ana@example.com", "secret"))
		assert.Equal(t, StateAuthenticated, s.State())
		assert.NoError(t, s.Require())
		assert.Equal(t, []Route{RouteHome}, nav)
		require.NotNil(t, s.User())
		assert.Equal(t, "ana@example.com", s.User().Email)
	})

	t.Run("failure stays anonymous and surfaces the error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		api := mock_session.NewMockAuthAPI(ctrl)
		api.EXPECT().
			Login(gomock.Any(), "ana@example.com", "wrong").
			Return(nil, "", errors.New("Invalid credentials"))

		var nav []Route
		s := New(api, zap.NewNop(), func(r Route) { nav = append(nav, r) })

		err := s.Login(context.Background(), "ana@example.com", "wrong")
		require.Error(t, err)
		assert.Equal(t, StateAnonymous, s.State())
		assert.ErrorIs(t, s.Require(), ErrUnauthenticated)
		assert.Empty(t, nav, "a failed login must not navigate")
	})
}

func TestSession_LogoutAlwaysClears(t *testing.T) {
	tests := []struct {
		name      string
		logoutErr error
	}{
		{name: "server termination succeeds"},
		{name: "server termination fails", logoutErr: errors.New("backend down")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			api := mock_session.NewMockAuthAPI(ctrl)
			api.EXPECT().Login(gomock.Any(), gomock.Any(), gomock.Any()).Return(staff, "ok", nil)
			api.EXPECT().Logout(gomock.Any()).Return(tc.logoutErr)

			var nav []Route
			s := New(api, zap.NewNop(), func(r Route) { nav = append(nav, r) })
			require.NoError(t, s.Login(context.Background(), "ana@example.com", "secret"))

			err := s.Logout(context.Background())
			if tc.logoutErr != nil {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			assert.Equal(t, StateAnonymous, s.State(), "logout must clear local state regardless of the request outcome")
			assert.Nil(t, s.User())
			assert.Equal(t, RouteLogin, nav[len(nav)-1])
		})
	}
}
