package retry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRetry(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "固定间隔",
			cfg: Config{
				Type:          "fixed",
				FixedInterval: &FixedIntervalConfig{MaxRetries: 3, Interval: 10},
			},
		},
		{
			name: "指数退避",
			cfg: Config{
				Type:               "exponential",
				ExponentialBackoff: &ExponentialBackoffConfig{InitialInterval: 1, MaxInterval: 10, MaxRetries: 3},
			},
		},
		{
			name:    "缺少配置",
			cfg:     Config{Type: "fixed"},
			wantErr: true,
		},
		{
			name:    "未知类型",
			cfg:     Config{Type: "linear"},
			wantErr: true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s, err := NewRetry(tc.cfg)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s)
		})
	}
}

func TestDo(t *testing.T) {
	t.Parallel()

	errConflict := errors.New("conflict")
	errFatal := errors.New("fatal")
	retryable := func(err error) bool { return errors.Is(err, errConflict) }
	newStrategy := func() Config {
		return Config{Type: "fixed", FixedInterval: &FixedIntervalConfig{MaxRetries: 2, Interval: 1}}
	}

	testCases := []struct {
		name      string
		errs      []error
		wantErr   error
		wantCalls int
	}{
		{name: "第一次成功", errs: []error{nil}, wantCalls: 1},
		{name: "冲突后成功", errs: []error{errConflict, nil}, wantCalls: 2},
		{name: "不可重试的错误", errs: []error{errFatal}, wantErr: errFatal, wantCalls: 1},
		{name: "重试次数用完", errs: []error{errConflict, errConflict, errConflict, nil}, wantErr: errConflict, wantCalls: 3},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s, err := NewRetry(newStrategy())
			require.NoError(t, err)
			calls := 0
			err = Do(context.Background(), s, retryable, func(ctx context.Context) error {
				e := tc.errs[calls]
				calls++
				return e
			})
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, tc.wantCalls, calls)
		})
	}
}
