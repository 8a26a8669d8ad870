package model

import (
	"errors"
	"testing"
)

func TestIdentityParts(t *testing.T) {
	id := Identity("fab-1/42")

	if id.Fabric() != "fab-1" {
		t.Errorf("expected fabric fab-1, got %s", id.Fabric())
	}
	if id.Node() != "42" {
		t.Errorf("expected node 42, got %s", id.Node())
	}

	bare := Identity("local")
	if bare.Fabric() != "" {
		t.Errorf("expected empty fabric, got %s", bare.Fabric())
	}
	if bare.Node() != "local" {
		t.Errorf("expected node local, got %s", bare.Node())
	}
}

func TestPathStrings(t *testing.T) {
	attr := AttributePath{Endpoint: 1, Cluster: 2, Attribute: 3}
	if attr.String() != "1/2/3" {
		t.Errorf("expected 1/2/3, got %s", attr.String())
	}

	cmd := CommandPath{Endpoint: 4, Cluster: 5, Command: 6}
	if cmd.String() != "4/5/6" {
		t.Errorf("expected 4/5/6, got %s", cmd.String())
	}

	event := EventPath{Endpoint: 7, Cluster: 8, Event: 9}
	if event.String() != "7/8/9" {
		t.Errorf("expected 7/8/9, got %s", event.String())
	}
}

func TestAccessFlags(t *testing.T) {
	if !AccessReadWrite.CanRead() || !AccessReadWrite.CanWrite() || !AccessReadWrite.CanSubscribe() {
		t.Error("expected AccessReadWrite to allow all operations")
	}
	if AccessReadOnly.CanWrite() {
		t.Error("expected AccessReadOnly to forbid writes")
	}
	if AccessReadOnly.String() != "RS" {
		t.Errorf("expected RS, got %s", AccessReadOnly.String())
	}
	if Access(0).String() != "-" {
		t.Errorf("expected -, got %s", Access(0).String())
	}
}

func TestAttributeValidate(t *testing.T) {
	meta := &AttributeMetadata{
		ID:       1,
		Name:     "powerLimit",
		Type:     DataTypeInt64,
		Access:   AccessReadWrite,
		MinValue: int64(0),
		MaxValue: int64(22000),
	}

	t.Run("ValidValue", func(t *testing.T) {
		if err := meta.Validate(int64(11000)); err != nil {
			t.Errorf("expected valid value, got %v", err)
		}
	})

	t.Run("WrongType", func(t *testing.T) {
		err := meta.Validate("fast")
		if !errors.Is(err, ErrAttributeValueType) {
			t.Errorf("expected ErrAttributeValueType, got %v", err)
		}
	})

	t.Run("BelowMin", func(t *testing.T) {
		err := meta.Validate(int64(-5))
		if !errors.Is(err, ErrAttributeOutOfRange) {
			t.Errorf("expected ErrAttributeOutOfRange, got %v", err)
		}
	})

	t.Run("AboveMax", func(t *testing.T) {
		err := meta.Validate(int64(30000))
		if !errors.Is(err, ErrAttributeOutOfRange) {
			t.Errorf("expected ErrAttributeOutOfRange, got %v", err)
		}
	})

	t.Run("NullRejected", func(t *testing.T) {
		err := meta.Validate(nil)
		if !errors.Is(err, ErrAttributeNotNullable) {
			t.Errorf("expected ErrAttributeNotNullable, got %v", err)
		}
	})

	t.Run("NullAllowedWhenNullable", func(t *testing.T) {
		nullable := &AttributeMetadata{ID: 2, Type: DataTypeString, Nullable: true}
		if err := nullable.Validate(nil); err != nil {
			t.Errorf("expected nil to validate, got %v", err)
		}
	})

	t.Run("DecodedUnsignedAccepted", func(t *testing.T) {
		// CBOR decoding produces uint64 for positive integers
		if err := meta.Validate(uint64(500)); err != nil {
			t.Errorf("expected uint64 to validate against int64 schema, got %v", err)
		}
	})
}

func TestCommandValidateParams(t *testing.T) {
	meta := &CommandMetadata{
		ID:   1,
		Name: "setLimit",
		Parameters: []ParameterMetadata{
			{Name: "watts", Type: DataTypeInt64, Required: true},
			{Name: "duration", Type: DataTypeInt64},
		},
	}

	if err := meta.ValidateParams(map[string]any{"watts": int64(1500)}); err != nil {
		t.Errorf("expected required param to satisfy, got %v", err)
	}

	err := meta.ValidateParams(map[string]any{"duration": int64(60)})
	if !errors.Is(err, ErrInvalidParameters) {
		t.Errorf("expected ErrInvalidParameters, got %v", err)
	}
}

func TestEndpointDescriptorLookups(t *testing.T) {
	cluster := NewClusterDescriptor(10, "PowerState").
		AddAttribute(&AttributeMetadata{ID: 1, Name: "on", Type: DataTypeBool, Access: AccessReadWrite}).
		AddCommand(&CommandMetadata{ID: 1, Name: "toggle"}).
		AddEvent(&EventMetadata{ID: 1, Name: "overload"})

	desc := NewEndpointDescriptor(1, "Lamp").AddCluster(cluster)

	if err := desc.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if _, err := desc.Cluster(10); err != nil {
		t.Errorf("expected cluster 10, got %v", err)
	}
	if _, err := desc.Cluster(99); !errors.Is(err, ErrClusterNotFound) {
		t.Errorf("expected ErrClusterNotFound, got %v", err)
	}

	if _, err := desc.Attribute(10, 1); err != nil {
		t.Errorf("expected attribute 10/1, got %v", err)
	}
	if _, err := desc.Attribute(10, 9); !errors.Is(err, ErrAttributeNotFound) {
		t.Errorf("expected ErrAttributeNotFound, got %v", err)
	}

	if _, err := cluster.Command(1); err != nil {
		t.Errorf("expected command 1, got %v", err)
	}
	if _, err := cluster.Command(9); !errors.Is(err, ErrCommandNotFound) {
		t.Errorf("expected ErrCommandNotFound, got %v", err)
	}

	if _, err := cluster.Event(1); err != nil {
		t.Errorf("expected event 1, got %v", err)
	}
	if _, err := cluster.Event(9); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound, got %v", err)
	}
}

func TestEndpointDescriptorValidateMismatch(t *testing.T) {
	cluster := NewClusterDescriptor(10, "PowerState")
	cluster.Attributes[5] = &AttributeMetadata{ID: 7, Name: "mismatched"}

	desc := NewEndpointDescriptor(1, "").AddCluster(cluster)
	if !errors.Is(desc.Validate(), ErrDuplicateMember) {
		t.Error("expected ErrDuplicateMember for key/ID mismatch")
	}
}

func TestEndpointInfo(t *testing.T) {
	desc := NewEndpointDescriptor(3, "Meter").
		AddCluster(NewClusterDescriptor(1, "Measurement")).
		AddCluster(NewClusterDescriptor(2, "Status"))

	info := desc.Info()
	if info.ID != 3 || info.Label != "Meter" {
		t.Errorf("unexpected info header: %+v", info)
	}
	if len(info.Clusters) != 2 {
		t.Errorf("expected 2 clusters, got %d", len(info.Clusters))
	}
}
