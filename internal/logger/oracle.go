package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

var (
	oracleMu  sync.Mutex
	oracleLog *log.Logger
)

// SetOracleWriter routes raw oracle request/response dumps to w.
// Passing nil disables dumping entirely.
func SetOracleWriter(w io.Writer) {
	oracleMu.Lock()
	defer oracleMu.Unlock()
	if w == nil {
		oracleLog = nil
		return
	}
	oracleLog = log.New(w, "", log.LstdFlags)
}

func dumpOracle(kind, oracle string, sections map[string]string, order []string) {
	oracleMu.Lock()
	l := oracleLog
	oracleMu.Unlock()
	if l == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[ORACLE][")
	b.WriteString(kind)
	b.WriteString("][")
	b.WriteString(oracle)
	b.WriteString("]\n")
	for _, title := range order {
		body := sections[title]
		if strings.TrimSpace(body) == "" {
			continue
		}
		b.WriteString("--- ")
		b.WriteString(title)
		b.WriteString(" ---\n")
		b.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	l.Print(b.String())
}

func LogOracleRequest(oracle, system, user string) {
	dumpOracle("request", oracle,
		map[string]string{"SYSTEM": system, "USER": user},
		[]string{"SYSTEM", "USER"})
}

func LogOracleResponse(oracle, raw string) {
	dumpOracle("response", oracle,
		map[string]string{"RAW": raw},
		[]string{"RAW"})
}
