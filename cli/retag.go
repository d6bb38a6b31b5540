package cli

import (
	"github.com/alecthomas/kong"

	"github.com/budgetlog/logbook/tagging"
)

type RetagCmd struct {
	Mode  string `help:"How tag rules treat existing tags." enum:"append,from-scratch,skip" default:"append"`
	Where string `help:"Rule selecting the operations to retag." placeholder:"RULE"`
	Yes   bool   `help:"Do not ask before replacing existing tags." short:"y"`
}

func (cmd *RetagCmd) Run(ctx *kong.Context, globals *Globals) error {
	mode, err := tagging.ParseMode(cmd.Mode)
	if err != nil {
		return err
	}

	if mode == tagging.FromScratch && !cmd.Yes {
		ok, err := promptYesNo("Replace the tags of every selected operation?")
		if err != nil {
			return err
		}
		if !ok {
			printInfof(ctx.Stderr, "retag cancelled, pass --yes to confirm without a prompt")
			return NewCommandError(1)
		}
	}

	s, err := globals.start(ctx, "retag")
	if err != nil {
		return err
	}
	defer s.finish()

	engine, _, closeAll, err := s.engine()
	if err != nil {
		return err
	}
	defer closeAll()

	where, err := s.where(cmd.Where)
	if err != nil {
		return err
	}

	res, err := engine.Retag(s.ctx, where, mode)
	if res == nil {
		return err
	}
	if err != nil {
		printWarningf(ctx.Stderr, "some events were not published: %v", err)
	}
	printResult(ctx.Stdout, res)
	return nil
}
