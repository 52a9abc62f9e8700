package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCronExpression_SixField(t *testing.T) {
	expr, err := NormalizeCronExpression("0 0 */2 * * *")
	require.NoError(t, err)
	assert.Equal(t, "0 0 */2 * * *", expr)
}

func TestNormalizeCronExpression_SevenFieldStripsYear(t *testing.T) {
	expr, err := NormalizeCronExpression("0 0 0 1 1 * 2030")
	require.NoError(t, err)
	assert.Equal(t, "0 0 0 1 1 *", expr)
}

func TestNormalizeCronExpression_Descriptor(t *testing.T) {
	expr, err := NormalizeCronExpression("@every 5m")
	require.NoError(t, err)
	assert.Equal(t, "@every 5m", expr)
}

func TestNormalizeCronExpression_Invalid(t *testing.T) {
	_, err := NormalizeCronExpression("not a cron expr")
	assert.Error(t, err)

	_, err = NormalizeCronExpression("")
	assert.Error(t, err)

	_, err = NormalizeCronExpression("0 0 0 1 1 * notayear")
	assert.Error(t, err)
}

func TestScheduler_RegisterAndStop(t *testing.T) {
	s := NewScheduler()
	ran := make(chan struct{}, 1)

	err := s.Register(Task{
		Name: "test-task",
		Cron: "@every 1h",
		Fn:   func() { ran <- struct{}{} },
	})
	require.NoError(t, err)

	s.Start()
	s.Stop()
}

func TestScheduler_Register_InvalidCron(t *testing.T) {
	s := NewScheduler()
	err := s.Register(Task{Name: "bad", Cron: "garbage"})
	assert.Error(t, err)
}
