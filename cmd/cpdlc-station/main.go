// cpdlc-station is a reference client: it logs on to a router daemon,
// optionally sends one message (-msg), and prints every thread that
// changes, including its replies, for a short
// window before exiting. It exists as a manual-testing harness for the
// daemon, the way dtncat serves as one for the bundle daemon.
package main

import (
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/cpdlc/cpdlcd/internal/catalog"
	"github.com/cpdlc/cpdlcd/internal/msglist"
	"github.com/cpdlc/cpdlcd/internal/transport"
	"github.com/cpdlc/cpdlcd/internal/wire"
)

func main() {
	var (
		addr   string
		caFile string
		from   string
		to     string
		msgArg string
		wait   time.Duration
	)

	flag.StringVar(&addr, "addr", "localhost:17622", "router daemon address")
	flag.StringVar(&caFile, "ca", "", "CA certificate to verify the daemon with (insecure if empty)")
	flag.StringVar(&from, "from", "", "this station's callsign")
	flag.StringVar(&to, "to", "", "peer callsign to declare at logon")
	flag.StringVar(&msgArg, "msg", "", "message to send, as CODE or CODE:arg1,arg2 (e.g. DM6 or UM20:FL350)")
	flag.DurationVar(&wait, "wait", 5*time.Second, "how long to wait for replies before exiting")
	flag.Parse()

	if from == "" {
		fmt.Fprintln(os.Stderr, "cpdlc-station: -from is required")
		os.Exit(1)
	}

	tlsConfig, err := buildClientTLSConfig(caFile)
	if err != nil {
		log.WithFields(log.Fields{"error": err}).Fatal("cpdlc-station: TLS setup failed")
	}

	logonMsg := &wire.Message{IsLogon: true, From: from, To: to, MRN: wire.InvalidSeqNr}
	client, err := transport.DialTLSClient(addr, tlsConfig, logonMsg)
	if err != nil {
		log.WithFields(log.Fields{"error": err}).Fatal("cpdlc-station: logon failed")
	}
	defer client.Close()

	engine := msglist.New(client, nil)
	engine.SetUpdateCallback(func(ids []msglist.ThreadID) {
		for _, id := range ids {
			printThread(engine, id)
		}
	})

	if msgArg != "" {
		code, args, err := parseMsgArg(msgArg)
		if err != nil {
			log.WithFields(log.Fields{"error": err}).Fatal("cpdlc-station: bad -msg")
		}
		seg := wire.Segment{Type: code, Args: args}
		out := &wire.Message{Segments: []wire.Segment{seg}}
		if _, err := engine.Send(out, msglist.NewThread); err != nil {
			log.WithFields(log.Fields{"error": err}).Fatal("cpdlc-station: send failed")
		}
	}

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		engine.Update()
		time.Sleep(200 * time.Millisecond)
	}
}

func printThread(e *msglist.Engine, id msglist.ThreadID) {
	status, _, err := e.GetThrStatus(id)
	if err != nil {
		return
	}
	n, _ := e.GetThrMsgCount(id)
	fmt.Printf("thread %d [%s]\n", id, status)
	for i := 0; i < n; i++ {
		b, err := e.GetThrMsg(id, i)
		if err != nil {
			continue
		}
		dir := "recv"
		if b.Sent {
			dir = "sent"
		}
		fmt.Printf("  %02d:%02d %s\n", b.Hour, b.Min, dir)
	}
	_ = e.ThrMarkSeen(id)
}

// parseMsgArg parses "CODE" or "CODE:arg1,arg2" into a catalog.Code and
// its argument vector. CODE is DM<n> or UM<n>.
func parseMsgArg(s string) (catalog.Code, []string, error) {
	codeStr, argStr := s, ""
	if i := strings.IndexByte(s, ':'); i >= 0 {
		codeStr, argStr = s[:i], s[i+1:]
	}

	var (
		n      int
		err    error
		isUp   bool
		digits string
	)
	switch {
	case strings.HasPrefix(codeStr, "DM"):
		digits = codeStr[2:]
	case strings.HasPrefix(codeStr, "UM"):
		digits = codeStr[2:]
		isUp = true
	default:
		return 0, nil, fmt.Errorf("message code %q must start with DM or UM", codeStr)
	}

	n, err = strconv.Atoi(digits)
	if err != nil {
		return 0, nil, fmt.Errorf("bad message number in %q: %w", codeStr, err)
	}

	code := catalog.DMCode(n)
	if isUp {
		code = catalog.UMCode(n)
	}

	var args []string
	if argStr != "" {
		args = strings.Split(argStr, ",")
	}
	return code, args, nil
}

func buildClientTLSConfig(caFile string) (*tls.Config, error) {
	if caFile == "" {
		return &tls.Config{InsecureSkipVerify: true}, nil
	}

	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read cafile: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("cafile %s contains no usable certificates", caFile)
	}
	return &tls.Config{RootCAs: pool}, nil
}
