package services

import (
	"testing"
	"time"
)

func TestCircuitBreaker_Transitions(t *testing.T) {
	cb := NewCircuitBreaker(1, 1*time.Millisecond, 1)

	if cb.State() != BreakerClosed {
		t.Fatalf("new breaker should be closed")
	}
	cb.OnFailure()
	if cb.State() != BreakerOpen {
		t.Fatalf("breaker should open after reaching max failures")
	}

	// 超时后 Allow 应转为半开并放行一次
	time.Sleep(2 * time.Millisecond)
	if !cb.Allow() {
		t.Fatalf("expected allow in half-open")
	}
	if cb.State() != BreakerHalfOpen {
		t.Fatalf("state should be half-open after allow")
	}

	// 半开状态成功 -> 关闭
	cb.OnSuccess()
	if cb.State() != BreakerClosed {
		t.Fatalf("expected closed after success in half-open")
	}
}

func TestBreakerState_String(t *testing.T) {
	tests := []struct {
		name     string
		state    BreakerState
		expected string
	}{
		{"closed", BreakerClosed, "closed"},
		{"open", BreakerOpen, "open"},
		{"half-open", BreakerHalfOpen, "half-open"},
		{"unknown", BreakerState(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	// 非法参数回落到默认值
	cb := NewCircuitBreaker(0, 0, 0)

	if cb.maxFailures != 5 {
		t.Errorf("expected maxFailures 5, got %d", cb.maxFailures)
	}
	if cb.resetTimeout != 60*time.Second {
		t.Errorf("expected resetTimeout 60s, got %v", cb.resetTimeout)
	}
	if cb.halfOpenMax != 3 {
		t.Errorf("expected halfOpenMax 3, got %d", cb.halfOpenMax)
	}
	if cb.State() != BreakerClosed {
		t.Errorf("expected initial state to be closed, got %v", cb.State())
	}
	if cb.FailureCount() != 0 {
		t.Errorf("expected initial failure count 0, got %d", cb.FailureCount())
	}
}

func TestCircuitBreaker_Allow_ClosedState(t *testing.T) {
	cb := NewCircuitBreaker(5, time.Minute, 3)

	if !cb.Allow() {
		t.Error("expected Allow() to return true in closed state")
	}
}

func TestCircuitBreaker_Allow_OpenState(t *testing.T) {
	cb := NewCircuitBreaker(2, 100*time.Millisecond, 3)

	// 触发熔断器打开
	cb.OnFailure()
	cb.OnFailure()

	if cb.State() != BreakerOpen {
		t.Errorf("expected state to be open, got %v", cb.State())
	}

	// 在开启状态下应该拒绝请求
	if cb.Allow() {
		t.Error("expected Allow() to return false in open state")
	}
}

func TestCircuitBreaker_HalfOpenLimit(t *testing.T) {
	cb := NewCircuitBreaker(1, 1*time.Millisecond, 2)

	cb.OnFailure()
	time.Sleep(2 * time.Millisecond)

	// 半开状态最多放行 halfOpenMax 次，含转换时的那一次
	if !cb.Allow() {
		t.Fatal("expected first half-open probe to pass")
	}
	if !cb.Allow() {
		t.Fatal("expected second half-open probe to pass")
	}
	if cb.Allow() {
		t.Error("expected probes beyond the half-open limit to be rejected")
	}
}

func TestCircuitBreaker_OnSuccess_ResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(5, time.Minute, 3)

	// 记录一些失败
	cb.OnFailure()
	cb.OnFailure()

	if cb.FailureCount() != 2 {
		t.Errorf("expected failure count 2, got %d", cb.FailureCount())
	}

	// 成功应该重置失败计数
	cb.OnSuccess()

	if cb.FailureCount() != 0 {
		t.Errorf("expected failure count to be reset to 0, got %d", cb.FailureCount())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute, 3)

	cb.OnFailure()
	cb.OnFailure()

	if cb.State() != BreakerOpen {
		t.Errorf("expected state to be open, got %v", cb.State())
	}

	cb.Reset()

	if cb.State() != BreakerClosed {
		t.Errorf("expected state to be closed after reset, got %v", cb.State())
	}
	if cb.FailureCount() != 0 {
		t.Errorf("expected failure count to be 0 after reset, got %d", cb.FailureCount())
	}
}

func TestCircuitBreaker_HalfOpenFailure(t *testing.T) {
	cb := NewCircuitBreaker(1, 50*time.Millisecond, 3)

	cb.OnFailure()

	// 进入半开状态
	time.Sleep(60 * time.Millisecond)
	cb.Allow()

	// 半开状态失败应该转回开启状态
	cb.OnFailure()

	if cb.State() != BreakerOpen {
		t.Errorf("expected state to be open after failure in half-open, got %v", cb.State())
	}
}

func TestCircuitBreaker_FailureThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute, 3)

	// 未达到失败阈值
	cb.OnFailure()
	cb.OnFailure()

	if cb.State() != BreakerClosed {
		t.Errorf("expected state to remain closed below threshold, got %v", cb.State())
	}

	// 达到失败阈值
	cb.OnFailure()

	if cb.State() != BreakerOpen {
		t.Errorf("expected state to be open after reaching threshold, got %v", cb.State())
	}
}
