package main

import (
	"context"
	"fmt"

	"github.com/trezcool/classdrive/core/document"
)

const redacted = "********"

// showDoc prints the document with password hashes and session tokens redacted.
func (cli *commandLine) showDoc(ctx context.Context) error {
	c, err := cli.services(ctx)
	if err != nil {
		return err
	}

	var doc *document.Document
	err = c.Store.View(ctx, func(d *document.Document) error {
		doc = d.Clone()
		return nil
	})
	if err != nil {
		return err
	}

	for _, accs := range []map[string]document.Account{doc.Admins, doc.Users} {
		for name, acc := range accs {
			acc.PasswordHash = redacted
			accs[name] = acc
		}
	}
	sessions := make(map[string]document.Session, len(doc.Sessions))
	for _, sess := range doc.Sessions {
		sessions[fmt.Sprintf("%s%d", redacted, len(sessions)+1)] = sess
	}
	doc.Sessions = sessions

	return document.Encode(cli.out, doc)
}
