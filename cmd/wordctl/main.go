package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/ChronoCoders/wordstream/internal/command"
	"github.com/ChronoCoders/wordstream/internal/wire"
)

func main() {
	// Setup logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	addr := pflag.StringP("addr", "a", "localhost:65535", "word server address")
	encName := pflag.StringP("encoding", "e", "utf16", "wire encoding (utf16 or utf8)")
	timeout := pflag.Duration("timeout", 5*time.Second, "dial timeout")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: wordctl [flags] [command ...]\n\nWith no command, reads commands from stdin.\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	enc, err := wire.Encoding(*encName)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid encoding")
	}

	conn, err := net.DialTimeout("tcp", *addr, *timeout)
	if err != nil {
		log.Fatal().Err(err).Str("addr", *addr).Msg("failed to connect")
	}
	defer conn.Close()

	c := &client{r: wire.NewReader(conn, enc), w: wire.NewWriter(conn, enc), out: os.Stdout}

	if args := pflag.Args(); len(args) > 0 {
		if _, err := c.run(strings.Join(args, " ")); err != nil {
			log.Fatal().Err(err).Msg("command failed")
		}
		return
	}

	if err := c.repl(os.Stdin, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("session ended")
	}
}

type client struct {
	r   *wire.Reader
	w   *wire.Writer
	out io.Writer
}

// run sends one command, prints the reply and reports whether the server
// ended the session.
func (c *client) run(line string) (bool, error) {
	if err := c.w.WriteMessage(line); err != nil {
		return false, err
	}
	reply, err := c.r.ReadMessage()
	if err != nil {
		return false, fmt.Errorf("read reply: %w", err)
	}
	fmt.Fprintln(c.out, render(reply))
	return reply == command.ReplyDisconnected, nil
}

func (c *client) repl(in io.Reader, prompt io.Writer) error {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(prompt, "CLIENT :: ")
		if !sc.Scan() {
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case strings.EqualFold(line, "exit"):
			return nil
		}
		done, err := c.run(line)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}
