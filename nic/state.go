// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nic

import "fmt"

type State uint8

const (
	Unattached State = iota
	Attached
	Initializing
	Running
	Disabled
	Released
	nState
)

var stateNames = [...]string{
	Unattached:   "unattached",
	Attached:     "attached",
	Initializing: "initializing",
	Running:      "running",
	Disabled:     "disabled",
	Released:     "released",
}

func (s State) String() string {
	if s < nState {
		return stateNames[s]
	}
	return fmt.Sprintf("state %d", uint8(s))
}

var stateNext = [nState][]State{
	Unattached:   {Attached, Released},
	Attached:     {Initializing, Disabled, Released},
	Initializing: {Running, Disabled, Released},
	Running:      {Disabled, Released},
	Disabled:     {Initializing, Released},
}

// CanTransmit is true once initialization has been started.
func (s State) CanTransmit() bool { return s == Initializing || s == Running }

func (s State) ValidNext(n State) bool {
	if s >= nState {
		return false
	}
	for _, x := range stateNext[s] {
		if x == n {
			return true
		}
	}
	return false
}
