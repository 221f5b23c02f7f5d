package engine

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"go.bytecodealliance.org/wit"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/script-bridge/errors"
)

var validate = validator.New()

// Manifest describes the classes a core wasm module implements. Core modules
// carry no class metadata, so methods, properties and static fields are mapped
// onto exports here. Types use WIT primitive names (bool, s16, u16, s32, u32,
// s64, u64, f32, f64, string).
type Manifest struct {
	Assembly string          `yaml:"assembly" json:"assembly" validate:"required"`
	Classes  []ClassManifest `yaml:"classes" json:"classes" validate:"dive"`
}

type ClassManifest struct {
	Namespace string `yaml:"namespace" json:"namespace,omitempty"`
	Name      string `yaml:"name" json:"name" validate:"required"`
	// Parent is the full name of a class declared earlier in the domain.
	Parent string `yaml:"parent" json:"parent,omitempty"`
	// Alloc names an export () -> i32 returning the new object's pointer.
	// Without it objects are stateless and carry pointer 0.
	Alloc      string             `yaml:"alloc" json:"alloc,omitempty"`
	Methods    []MethodManifest   `yaml:"methods" json:"methods,omitempty" validate:"dive"`
	Properties []PropertyManifest `yaml:"properties" json:"properties,omitempty" validate:"dive"`
	Fields     []FieldManifest    `yaml:"fields" json:"fields,omitempty" validate:"dive"`
}

type MethodManifest struct {
	Name   string          `yaml:"name" json:"name" validate:"required"`
	Export string          `yaml:"export" json:"export" validate:"required"`
	Params []ParamManifest `yaml:"params" json:"params,omitempty" validate:"dive"`
	Result string          `yaml:"result" json:"result,omitempty"`
	Static bool            `yaml:"static" json:"static,omitempty"`
}

type ParamManifest struct {
	Name string `yaml:"name" json:"name"`
	Type string `yaml:"type" json:"type" validate:"required"`
}

type PropertyManifest struct {
	Name   string `yaml:"name" json:"name" validate:"required"`
	Type   string `yaml:"type" json:"type" validate:"required"`
	Get    string `yaml:"get" json:"get,omitempty" validate:"required_without=Set"`
	Set    string `yaml:"set" json:"set,omitempty"`
	Static bool   `yaml:"static" json:"static,omitempty"`
}

// FieldManifest maps a static field onto an exported global.
type FieldManifest struct {
	Name   string `yaml:"name" json:"name" validate:"required"`
	Type   string `yaml:"type" json:"type" validate:"required"`
	Global string `yaml:"global" json:"global" validate:"required"`
}

// ParseManifest decodes and validates a YAML class manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.ParseFailed("class manifest", err)
	}
	if err := validate.Struct(&m); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "validate class manifest")
	}
	return &m, nil
}

// ParseType maps a WIT primitive type name to a managed type. The empty
// string is void.
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TypeVoid, nil
	}
	t, err := wit.ParseType(s)
	if err != nil {
		return TypeVoid, errors.ParseFailed("type "+s, err)
	}
	switch t.(type) {
	case wit.Bool:
		return TypeBoolean, nil
	case wit.S16:
		return TypeI2, nil
	case wit.U16:
		return TypeU2, nil
	case wit.S32:
		return TypeI4, nil
	case wit.U32:
		return TypeU4, nil
	case wit.S64:
		return TypeI8, nil
	case wit.U64:
		return TypeU8, nil
	case wit.F32:
		return TypeR4, nil
	case wit.F64:
		return TypeR8, nil
	case wit.String:
		return TypeString, nil
	default:
		return TypeVoid, errors.Unsupported(errors.PhaseConfig, "type "+s+" has no managed equivalent")
	}
}
