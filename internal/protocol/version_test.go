package protocol

import (
	"errors"
	"testing"
)

func TestVersionOrdering(t *testing.T) {
	chain := []Version{V1_7_2, V14W04A, V1_8, V15W35A, V1_9, FlatteningVersion, V1_13, V18W43A, V1_14, V21W37A, V1_18, V23W31A, V1_20_2, Latest}
	for i := 1; i < len(chain); i++ {
		if chain[i-1] >= chain[i] {
			t.Errorf("%s 应早于 %s", chain[i-1], chain[i])
		}
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name     string
		want     Version
		protocol int32
	}{
		{"1.8", V1_8, 47},
		{"1.8.9", V1_8, 47},
		{"1.12.2", V1_12_2, 340},
		{"1.16.5", V1_16_4, 754},
		{"1.20.4", V1_20_3, 765},
		{"1.21.4", V1_21_4, 769},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVersion(tt.name)
			if err != nil {
				t.Fatalf("ParseVersion failed: %v", err)
			}
			if got != tt.want || got.Protocol() != tt.protocol {
				t.Errorf("got %s (%d), 期望 %s (%d)", got, got.Protocol(), tt.want, tt.protocol)
			}
			byProto, err := VersionByProtocol(tt.protocol)
			if err != nil || byProto != tt.want {
				t.Errorf("VersionByProtocol(%d) = %s, %v", tt.protocol, byProto, err)
			}
		})
	}

	if _, err := ParseVersion("0.30c"); !errors.Is(err, ErrUnknownVersion) {
		t.Errorf("期望 ErrUnknownVersion, 实际 %v", err)
	}
	if V15W35A.Negotiable() {
		t.Errorf("快照边界不应可协商")
	}
}

func TestRange(t *testing.T) {
	r := Between(V1_19, V1_19_3)
	if r.Contains(V1_18_2) || !r.Contains(V1_19) || !r.Contains(V1_19_1) || r.Contains(V1_19_3) {
		t.Errorf("Between 区间判定错误")
	}
	if !Since(V1_9).Contains(Latest) || Since(V1_9).Contains(V1_8) {
		t.Errorf("Since 区间判定错误")
	}
	if !Until(V1_9).Contains(V1_7_2) || Until(V1_9).Contains(V1_9) {
		t.Errorf("Until 区间判定错误")
	}
	if !AllVersions.Contains(V1_7_2) || !AllVersions.Contains(Latest) {
		t.Errorf("AllVersions 应包含所有版本")
	}
}

func TestReleasesSorted(t *testing.T) {
	releases := Releases()
	if len(releases) == 0 {
		t.Fatal("Releases() 为空")
	}
	for i := 1; i < len(releases); i++ {
		if releases[i-1].Protocol >= releases[i].Protocol {
			t.Errorf("协议号未递增: %s(%d) >= %s(%d)", releases[i-1].Name, releases[i-1].Protocol, releases[i].Name, releases[i].Protocol)
		}
	}
}
