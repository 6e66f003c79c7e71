package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go-blockdb/pkg/accounts"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".exit"),
	readline.PcItem("INSERT"),
	readline.PcItem("FIND"),
	readline.PcItem("FINDBY"),
	readline.PcItem("BALANCE"),
	readline.PcItem("DELETE"),
	readline.PcItem("VERIFY"),
)

const help = `Commands:
  INSERT <number> <first name> <last name> <age> <pesel> <balance>  - Insert an account, prints its id
  FIND <id>                                                        - Find an account by id
  FINDBY <first name> <age>                                        - Find accounts by first name and age
  BALANCE <id> <balance>                                           - Set the balance of an account
  DELETE <id>                                                      - Delete an account
  VERIFY                                                           - Check the integrity of all files
  .help                                                            - Show this help
  .exit                                                            - Exit the program
`

type shell struct {
	db  *accounts.Database
	out io.Writer
}

// execute runs one command line and reports whether the shell should stop.
func (sh *shell) execute(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}

	cmd := strings.ToUpper(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case ".EXIT":
		return true
	case ".HELP":
		fmt.Fprint(sh.out, help)
	case "INSERT":
		err = sh.insert(args)
	case "FIND":
		err = sh.find(args)
	case "FINDBY":
		err = sh.findBy(args)
	case "BALANCE":
		err = sh.balance(args)
	case "DELETE":
		err = sh.delete(args)
	case "VERIFY":
		if err = sh.db.Verify(context.Background()); err == nil {
			fmt.Fprintln(sh.out, "ok")
		}
	default:
		err = errors.Errorf("unknown command '%s', enter .help for usage hints", parts[0])
	}

	if err != nil {
		fmt.Fprintf(sh.out, "error: %v\n", err)
	}
	return false
}

func (sh *shell) insert(args []string) error {
	if len(args) != 6 {
		return errors.New("usage: INSERT <number> <first name> <last name> <age> <pesel> <balance>")
	}

	age, err := strconv.ParseInt(args[3], 10, 32)
	if err != nil {
		return errors.Wrap(err, "bad age")
	}
	balance, err := strconv.ParseInt(args[5], 10, 64)
	if err != nil {
		return errors.Wrap(err, "bad balance")
	}

	a := &accounts.Account{
		ID:            uuid.New(),
		AccountNumber: args[0],
		FirstName:     args[1],
		LastName:      args[2],
		Age:           int32(age),
		Pesel:         args[4],
		Balance:       balance,
	}
	if err := sh.db.Insert(a); err != nil {
		return err
	}

	fmt.Fprintln(sh.out, a.ID)
	return nil
}

func (sh *shell) find(args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}

	a, err := sh.db.Find(id)
	if err != nil {
		return err
	}
	fmt.Fprintln(sh.out, a)
	return nil
}

func (sh *shell) findBy(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: FINDBY <first name> <age>")
	}
	age, err := strconv.ParseInt(args[1], 10, 32)
	if err != nil {
		return errors.Wrap(err, "bad age")
	}

	found, err := sh.db.FindBy(args[0], int32(age))
	if err != nil {
		return err
	}
	for _, a := range found {
		fmt.Fprintln(sh.out, a)
	}
	fmt.Fprintf(sh.out, "%d account(s)\n", len(found))
	return nil
}

func (sh *shell) balance(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: BALANCE <id> <balance>")
	}
	id, err := parseID(args[:1])
	if err != nil {
		return err
	}
	balance, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return errors.Wrap(err, "bad balance")
	}

	a, err := sh.db.Find(id)
	if err != nil {
		return err
	}
	a.Balance = balance
	return sh.db.Update(a)
}

func (sh *shell) delete(args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	return sh.db.Delete(id)
}

func parseID(args []string) (uuid.UUID, error) {
	if len(args) != 1 {
		return uuid.Nil, errors.New("expected a single account id")
	}
	id, err := uuid.Parse(args[0])
	return id, errors.Wrap(err, "bad account id")
}
