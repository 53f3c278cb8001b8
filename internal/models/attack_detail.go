// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package models

import (
	"fmt"

	"github.com/goccy/go-json"
)

// AttackDetail is the typed, heuristic-specific payload attached to an
// AttackPattern. It is serialized as a tagged variant: the attack_type
// field is the tag, the remaining fields belong to the concrete type.
type AttackDetail interface {
	// DetailType returns the tag identifying the concrete variant.
	DetailType() AttackType
}

// SequentialDetail carries no extra fields; the pattern counters say it all.
type SequentialDetail struct{}

// DetailType returns the variant tag.
func (SequentialDetail) DetailType() AttackType { return AttackTypeSequential }

// DistributedDetail records how many distinct sources targeted the account.
type DistributedDetail struct {
	SourceCount int `json:"source_count"`
}

// DetailType returns the variant tag.
func (DistributedDetail) DetailType() AttackType { return AttackTypeDistributed }

// VelocityDetail records the burst that tripped the velocity heuristic.
type VelocityDetail struct {
	AttemptCount  int `json:"attempt_count"`
	WindowSeconds int `json:"window_seconds"`
}

// DetailType returns the variant tag.
func (VelocityDetail) DetailType() AttackType { return AttackTypeVelocity }

// DictionaryDetail carries no extra fields.
type DictionaryDetail struct{}

// DetailType returns the variant tag.
func (DictionaryDetail) DetailType() AttackType { return AttackTypeDictionary }

// detailEnvelope is the wire form of an AttackDetail.
type detailEnvelope struct {
	AttackType AttackType      `json:"attack_type"`
	Detail     json.RawMessage `json:"detail,omitempty"`
}

// MarshalDetail serializes a detail as a tagged variant.
func MarshalDetail(d AttackDetail) (json.RawMessage, error) {
	if d == nil {
		return nil, nil
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal detail payload: %w", err)
	}

	raw, err := json.Marshal(detailEnvelope{
		AttackType: d.DetailType(),
		Detail:     payload,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal detail envelope: %w", err)
	}

	return raw, nil
}

// UnmarshalDetail decodes a tagged variant back into its concrete type.
// A nil or empty input yields a nil detail.
func UnmarshalDetail(raw json.RawMessage) (AttackDetail, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var env detailEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal detail envelope: %w", err)
	}

	switch env.AttackType {
	case AttackTypeSequential:
		return SequentialDetail{}, nil
	case AttackTypeDistributed:
		var d DistributedDetail
		if err := json.Unmarshal(env.Detail, &d); err != nil {
			return nil, fmt.Errorf("unmarshal distributed detail: %w", err)
		}
		return d, nil
	case AttackTypeVelocity:
		var d VelocityDetail
		if err := json.Unmarshal(env.Detail, &d); err != nil {
			return nil, fmt.Errorf("unmarshal velocity detail: %w", err)
		}
		return d, nil
	case AttackTypeDictionary:
		return DictionaryDetail{}, nil
	default:
		return nil, fmt.Errorf("unknown attack detail type: %q", env.AttackType)
	}
}
