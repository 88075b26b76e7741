package protocol

import (
	"errors"
	"sync"
	"testing"
)

func TestConnStateDefault(t *testing.T) {
	cs := NewConnState(V1_20_3)
	if cs.Get() != Handshaking {
		t.Errorf("默认状态 = %s, 期望 Handshaking", cs.Get())
	}
	if cs.GetThreshold() != -1 {
		t.Errorf("默认阈值 = %d, 期望 -1", cs.GetThreshold())
	}
	if cs.Version() != V1_20_3 {
		t.Errorf("版本 = %s, 期望 1.20.3", cs.Version())
	}
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		to      State
		version Version
		want    bool
	}{
		{"握手到状态查询", Handshaking, Status, V1_8, true},
		{"握手到登录", Handshaking, Login, V1_8, true},
		{"握手直接到游戏", Handshaking, Play, V1_8, false},
		{"状态查询是终态", Status, Login, V1_8, false},
		{"旧版本登录到游戏", Login, Play, V1_20, true},
		{"旧版本没有配置阶段", Login, Configuration, V1_20, false},
		{"新版本登录到配置", Login, Configuration, V1_20_2, true},
		{"新版本登录不能直达游戏", Login, Play, V1_20_2, false},
		{"配置到游戏", Configuration, Play, V1_20_2, true},
		{"游戏重新进入配置", Play, Configuration, V1_20_3, true},
		{"旧版本游戏不能进入配置", Play, Configuration, V1_19_4, false},
		{"任意状态断开", Play, Disconnected, V1_8, true},
		{"断开后不能再断开", Disconnected, Disconnected, V1_8, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to, tt.version); got != tt.want {
				t.Errorf("%s -> %s @ %s = %v, 期望 %v", tt.from, tt.to, tt.version, got, tt.want)
			}
		})
	}
}

func TestConnStateTransitionError(t *testing.T) {
	cs := NewConnState(V1_8)
	if err := cs.Transition(Login); err != nil {
		t.Fatalf("Transition(Login) failed: %v", err)
	}
	err := cs.Transition(Configuration)
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("期望 ErrIllegalTransition, 实际 %v", err)
	}
	if cs.Get() != Login {
		t.Errorf("非法转换后状态 = %s, 期望 login", cs.Get())
	}
}

func TestConnStateConcurrentAccess(t *testing.T) {
	cs := NewConnState(V1_8)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(v int) {
			defer wg.Done()
			cs.SetThreshold(v)
		}(i)
		go func() {
			defer wg.Done()
			_ = cs.Get()
			_ = cs.GetThreshold()
		}()
	}
	wg.Wait()
}
