// chatcli is a terminal client for the chat pipeline. It drives the same
// session state machines the web widgets implement: a visitor session
// that identifies itself and chats, or an admin session that watches the
// admin room and replies in a thread.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"portfolio-chat/internal/chat"
	"portfolio-chat/internal/session"
)

func main() {
	var (
		server       = flag.String("server", "http://localhost:8080", "chat server base URL")
		mode         = flag.String("mode", "visitor", "visitor or admin")
		name         = flag.String("name", "", "visitor display name (visitor mode)")
		whatsApp     = flag.String("whatsapp", "", "visitor WhatsApp number (visitor mode)")
		identityFile = flag.String("identity", ".chatcli-identity.json", "visitor identity file")
		adminName    = flag.String("admin-name", "Admin", "display name for admin replies")
		conversation = flag.String("conversation", "", "conversation to open (admin mode)")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	api := session.NewClient(*server)
	sock := session.NewSocket(*server, log)
	defer sock.Close()

	ctx := context.Background()
	var err error
	switch *mode {
	case "visitor":
		err = runVisitor(ctx, api, sock, *identityFile, *name, *whatsApp, log)
	case "admin":
		err = runAdmin(ctx, api, sock, *adminName, *conversation, log)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("chatcli")
	}
}

// printer renders transcript messages exactly once, in order.
type printer struct {
	mu      sync.Mutex
	printed int
}

func (p *printer) render(messages []chat.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ; p.printed < len(messages); p.printed++ {
		m := messages[p.printed]
		fmt.Printf("[%s] %s: %s\n", m.Timestamp.Format("15:04:05"), m.SenderName, m.Message)
	}
}

func runVisitor(ctx context.Context, api *session.Client, sock *session.Socket, identityFile, name, whatsApp string, log zerolog.Logger) error {
	identity, err := session.LoadIdentity(identityFile)
	if err != nil {
		return err
	}

	v := session.NewVisitorSession(api, sock, identity, log)
	p := &printer{}
	v.OnChange = func() { p.render(v.Transcript()) }

	if name != "" {
		err = v.Identify(ctx, name, "", whatsApp)
	} else {
		err = v.Resume(ctx)
	}
	if err != nil {
		return err
	}
	defer v.Close()

	v.StartPolling(ctx, 5*time.Second)
	fmt.Printf("connected as %s (%s) — type a message and press enter\n", identity.VisitorName, identity.VisitorID)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if _, err := v.Send(ctx, text); err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %v (resubmit)\n", err)
		}
	}
	return scanner.Err()
}

func runAdmin(ctx context.Context, api *session.Client, sock *session.Socket, adminName, conversation string, log zerolog.Logger) error {
	a := session.NewAdminSession(api, sock, adminName, log)
	p := &printer{}
	a.OnChange = func() {
		if a.View() == session.ViewReady {
			p.render(a.Transcript())
		}
	}

	if err := a.Start(ctx); err != nil {
		return err
	}
	defer a.Close()

	conversations := a.Conversations()
	if conversation == "" {
		if len(conversations) == 0 {
			return fmt.Errorf("no active conversations")
		}
		for _, c := range conversations {
			fmt.Printf("%-40s %-20s unread=%d  %s\n", c.VisitorID, c.VisitorName, c.UnreadCount, c.LastMessage)
		}
		conversation = conversations[0].VisitorID
	}

	if err := a.Open(ctx, conversation); err != nil {
		return err
	}
	fmt.Printf("opened %s — type a reply and press enter\n", conversation)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if _, err := a.Reply(ctx, text); err != nil {
			fmt.Fprintf(os.Stderr, "reply failed: %v (resubmit)\n", err)
		}
	}
	return scanner.Err()
}
