package selector_test

import (
	"testing"

	"github.com/srg/fanlink/internal/device"
	"github.com/srg/fanlink/internal/selector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func char(uuid string, props device.Properties) device.Characteristic {
	return device.Characteristic{UUID: uuid, Properties: props}
}

func TestFirst_Writable(t *testing.T) {
	tests := []struct {
		name      string
		tree      []device.Service
		wantFound bool
		wantRef   device.CharacteristicRef
	}{
		{
			name:      "empty tree",
			tree:      nil,
			wantFound: false,
		},
		{
			name: "no writable characteristic",
			tree: []device.Service{
				{UUID: "180a", Characteristics: []device.Characteristic{char("2a29", device.PropRead)}},
				{UUID: "fff0", Characteristics: []device.Characteristic{char("fff1", device.PropNotify|device.PropWriteWithoutResponse)}},
			},
			wantFound: false,
		},
		{
			name: "single writable characteristic",
			tree: []device.Service{
				{UUID: "fff0", Characteristics: []device.Characteristic{char("fff1", device.PropWrite)}},
			},
			wantFound: true,
			wantRef:   device.CharacteristicRef{Service: 0, Index: 0, ServiceUUID: "fff0", UUID: "fff1"},
		},
		{
			name: "first match wins across services",
			tree: []device.Service{
				{UUID: "180a", Characteristics: []device.Characteristic{char("2a29", device.PropRead)}},
				{UUID: "fff0", Characteristics: []device.Characteristic{
					char("fff1", device.PropRead),
					char("fff2", device.PropRead|device.PropWrite),
					char("fff3", device.PropWrite),
				}},
				{UUID: "ffe0", Characteristics: []device.Characteristic{char("ffe1", device.PropWrite)}},
			},
			wantFound: true,
			wantRef:   device.CharacteristicRef{Service: 1, Index: 1, ServiceUUID: "fff0", UUID: "fff2"},
		},
		{
			name: "service without characteristics is skipped",
			tree: []device.Service{
				{UUID: "1800"},
				{UUID: "fff0", Characteristics: []device.Characteristic{char("fff1", device.PropWrite)}},
			},
			wantFound: true,
			wantRef:   device.CharacteristicRef{Service: 1, Index: 0, ServiceUUID: "fff0", UUID: "fff1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, found := selector.First(tt.tree, selector.Writable)
			assert.Equal(t, tt.wantFound, found, "found MUST match")
			if tt.wantFound {
				assert.Equal(t, tt.wantRef, ref, "ref MUST point at the first writable characteristic")
			}
		})
	}
}

func TestFirst_IsDeterministic(t *testing.T) {
	tree := []device.Service{
		{UUID: "a", Characteristics: []device.Characteristic{char("1", device.PropWrite), char("2", device.PropWrite)}},
		{UUID: "b", Characteristics: []device.Characteristic{char("3", device.PropWrite)}},
	}
	first, ok := selector.First(tree, selector.Writable)
	require.True(t, ok)
	for i := 0; i < 20; i++ {
		ref, _ := selector.First(tree, selector.Writable)
		assert.Equal(t, first, ref, "traversal MUST be deterministic")
	}
}

func TestFirst_AnyWriteAcceptsWriteWithoutResponse(t *testing.T) {
	tree := []device.Service{
		{UUID: "fff0", Characteristics: []device.Characteristic{
			char("fff1", device.PropNotify),
			char("fff2", device.PropWriteWithoutResponse),
		}},
	}

	_, strict := selector.First(tree, selector.Writable)
	assert.False(t, strict, "Writable MUST require a write with response")

	ref, ok := selector.First(tree, selector.AnyWrite)
	require.True(t, ok, "AnyWrite MUST accept write-without-response")
	assert.Equal(t, "fff2", ref.UUID)

	ref, ok = selector.First(tree, nil)
	assert.False(t, ok, "nil match MUST default to Writable")
	assert.Equal(t, device.CharacteristicRef{}, ref)
}

func TestRule_Select(t *testing.T) {
	tree := []device.Service{
		{UUID: "180a", Characteristics: []device.Characteristic{char("2a29", device.PropRead)}},
		{UUID: "ffe0", Characteristics: []device.Characteristic{char("ffe1", device.PropWrite)}},
		{UUID: "fff0", Characteristics: []device.Characteristic{
			char("fff1", device.PropRead),
			char("fff2", device.PropWrite),
			char("fff3", device.PropWriteWithoutResponse),
		}},
	}

	tests := []struct {
		name      string
		rule      selector.Rule
		wantFound bool
		wantRef   device.CharacteristicRef
	}{
		{
			name:      "unpinned takes the first writable",
			rule:      selector.Rule{},
			wantFound: true,
			wantRef:   device.CharacteristicRef{Service: 1, Index: 0, ServiceUUID: "ffe0", UUID: "ffe1"},
		},
		{
			name:      "pinned pair wins over discovery order",
			rule:      selector.Rule{ServiceUUID: "FFF0", CharacteristicUUID: "0xFFF2"},
			wantFound: true,
			wantRef:   device.CharacteristicRef{Service: 2, Index: 1, ServiceUUID: "fff0", UUID: "fff2"},
		},
		{
			name:      "pinned characteristic in SIG base form",
			rule:      selector.Rule{CharacteristicUUID: "0000fff3-0000-1000-8000-00805f9b34fb"},
			wantFound: true,
			wantRef:   device.CharacteristicRef{Service: 2, Index: 2, ServiceUUID: "fff0", UUID: "fff3"},
		},
		{
			name:      "pinned service only takes its first writable",
			rule:      selector.Rule{ServiceUUID: "fff0"},
			wantFound: true,
			wantRef:   device.CharacteristicRef{Service: 2, Index: 1, ServiceUUID: "fff0", UUID: "fff2"},
		},
		{
			name:      "pinned characteristic that cannot be written falls back",
			rule:      selector.Rule{ServiceUUID: "fff0", CharacteristicUUID: "fff1"},
			wantFound: true,
			wantRef:   device.CharacteristicRef{Service: 1, Index: 0, ServiceUUID: "ffe0", UUID: "ffe1"},
		},
		{
			name:      "pinned pair missing from the tree falls back",
			rule:      selector.Rule{ServiceUUID: "abcd", CharacteristicUUID: "fff2"},
			wantFound: true,
			wantRef:   device.CharacteristicRef{Service: 1, Index: 0, ServiceUUID: "ffe0", UUID: "ffe1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, found := tt.rule.Select(tree)
			assert.Equal(t, tt.wantFound, found, "found MUST match")
			assert.Equal(t, tt.wantRef, ref)
		})
	}

	_, found := selector.Rule{CharacteristicUUID: "fff2"}.Select(tree[:1])
	assert.False(t, found, "tree without any writable characteristic MUST NOT yield a target")
	assert.False(t, selector.Rule{Match: selector.AnyWrite}.Pinned())
	assert.True(t, selector.Rule{CharacteristicUUID: "fff2"}.Pinned())
}

func TestResolve(t *testing.T) {
	tree := []device.Service{
		{UUID: "fff0", Characteristics: []device.Characteristic{char("fff1", device.PropWrite)}},
	}

	c, ok := selector.Resolve(tree, device.CharacteristicRef{Service: 0, Index: 0})
	require.True(t, ok)
	assert.Equal(t, "fff1", c.UUID)

	for _, ref := range []device.CharacteristicRef{{Service: 1}, {Index: 3}, {Service: -1}} {
		_, ok := selector.Resolve(tree, ref)
		assert.False(t, ok, "out of range ref %+v MUST NOT resolve", ref)
	}
}

func TestEncode(t *testing.T) {
	assert.Equal(t, []byte("hello"), selector.Encode("hello"))
	assert.Equal(t, []byte{0xe2, 0x82, 0xac}, selector.Encode("€"), "payload MUST be encoded as UTF-8")
	assert.Empty(t, selector.Encode(""))
}
