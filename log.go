/*
 * Copyright (c) 2013 IBM Corp.
 *
 * All rights reserved. This program and the accompanying materials
 * are made available under the terms of the Eclipse Public License v1.0
 * which accompanies this distribution, and is available at
 * http://www.eclipse.org/legal/epl-v10.html
 */

package mqtt

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// component tags, carried as a structured field rather than a string
// prefix so log aggregation can filter by them.
const (
	CLI = "CLI"
	NET = "NET"
	STR = "STR"
	PNG = "PNG"
	ROU = "ROU"
	RCN = "RCN"
	BUF = "BUF"
)

// componentLogger adapts logrus to the Println/Printf call shape used
// throughout this package, tagging every line with the emitting
// component so a single broker's worth of client logs stay legible.
type componentLogger struct {
	level log.Level
}

func (c componentLogger) Println(v ...interface{}) {
	if !log.IsLevelEnabled(c.level) {
		return
	}
	component, rest := "", v
	if len(v) > 0 {
		if s, ok := v[0].(string); ok {
			component, rest = s, v[1:]
		}
	}
	entry := log.WithField("component", component)
	msg := fmt.Sprintln(rest...)
	switch c.level {
	case log.ErrorLevel:
		entry.Error(msg)
	case log.WarnLevel:
		entry.Warn(msg)
	default:
		entry.Debug(msg)
	}
}

func (c componentLogger) Printf(format string, v ...interface{}) {
	if !log.IsLevelEnabled(c.level) {
		return
	}
	msg := fmt.Sprintf(format, v...)
	switch c.level {
	case log.ErrorLevel:
		log.Error(msg)
	case log.WarnLevel:
		log.Warn(msg)
	default:
		log.Debug(msg)
	}
}

// The four severities the core logs at, matching the teacher's DEBUG/WARN/ERROR
// trio plus CRITICAL for fatal, unrecoverable conditions (§7).
var (
	DEBUG    = componentLogger{level: log.DebugLevel}
	WARN     = componentLogger{level: log.WarnLevel}
	ERROR    = componentLogger{level: log.ErrorLevel}
	CRITICAL = componentLogger{level: log.ErrorLevel}
)
