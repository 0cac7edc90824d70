package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/lazycache"
	"github.com/unkn0wn-root/lazycache/store"
)

var errMiss = errors.New("not found")

// parseValue reads arg as JSON, falling back to a plain string.
func parseValue(arg string) any {
	var v any
	if err := json.Unmarshal([]byte(arg), &v); err != nil {
		return arg
	}
	return v
}

// render prints a session's value as JSON when the codec can decode it.
func render(w io.Writer, s lazycache.Session[any]) error {
	raw := s.ToStr()
	if raw == "" {
		return errMiss
	}
	v := s.ToClass()
	if raw == lazycache.NoDataMarker || v == nil {
		_, err := fmt.Fprintln(w, raw)
		return err
	}
	b, err := json.Marshal(*v)
	if err != nil {
		_, err = fmt.Fprintf(w, "%v\n", *v)
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func readFlags(cmd *cobra.Command) {
	cmd.Flags().String("or", "", "payload stored verbatim on a miss")
	cmd.Flags().Bool("nodata", false, "store the no-data marker when --or is empty")
	cmd.Flags().Duration("ttl", 0, "expiry applied when --or filled the entry")
}

func fallback(cmd *cobra.Command) (lazycache.Producer, bool) {
	or, _ := cmd.Flags().GetString("or")
	nodata, _ := cmd.Flags().GetBool("nodata")
	if or == "" && !nodata {
		return nil, false
	}
	return func(context.Context) (any, error) {
		if or == "" {
			return nil, nil
		}
		return or, nil
	}, true
}

func withFallback(ctx context.Context, cmd *cobra.Command, s lazycache.Session[any]) lazycache.Session[any] {
	p, ok := fallback(cmd)
	if !ok {
		return s
	}
	if nodata, _ := cmd.Flags().GetBool("nodata"); nodata {
		s = s.EnableNoData()
	}
	return s.Or(ctx, p).Expire(ctx, ttlFlag(cmd))
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Read a scalar entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				s := lazycache.Open[any](a.c).Get(ctx, args[0])
				return render(cmd.OutOrStdout(), withFallback(ctx, cmd, s))
			})
		},
	}
	readFlags(cmd)
	return cmd
}

func newHGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hget KEY FIELD",
		Short: "Read a hash field",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				s := lazycache.Open[any](a.c).HGet(ctx, args[0], args[1])
				return render(cmd.OutOrStdout(), withFallback(ctx, cmd, s))
			})
		},
	}
	readFlags(cmd)
	return cmd
}

func newSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Encode VALUE (JSON or plain text) and write it to KEY",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				s := lazycache.Open[any](a.c)
				if ttl := ttlFlag(cmd); ttl > 0 {
					s.SetEx(ctx, args[0], parseValue(args[1]), ttl)
					return nil
				}
				s.Set(ctx, args[0], parseValue(args[1]))
				return nil
			})
		},
	}
	cmd.Flags().Duration("ttl", 0, "expiry for KEY")
	return cmd
}

func newHSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hset KEY FIELD VALUE",
		Short: "Encode VALUE (JSON or plain text) and write it to a hash field",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				lazycache.Open[any](a.c).HSet(ctx, args[0], args[1], parseValue(args[2]))
				return nil
			})
		},
	}
}

func newExpireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire KEY TTL",
		Short: "Set the expiry of KEY (the whole hash for hash keys)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, err := time.ParseDuration(args[1])
			if err != nil {
				return err
			}
			if ttl <= 0 {
				return fmt.Errorf("ttl must be positive, got %s", ttl)
			}
			return run(cmd, func(ctx context.Context, a *app) error {
				err := a.c.Store().Expire(ctx, args[0], ttl)
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("%s: %w", args[0], errMiss)
				}
				return err
			})
		},
	}
}

func newAppendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "append KEY FIELD VALUE",
		Short: "Append VALUE to the list stored in a hash field",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				if !lazycache.AppendToList(ctx, a.c, args[0], args[1], parseValue(args[2])) {
					return fmt.Errorf("%s/%s: no list: %w", args[0], args[1], errMiss)
				}
				return nil
			})
		},
	}
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove KEY FIELD VALUE",
		Short: "Remove the first element equal to VALUE from the list stored in a hash field",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				eq := func(x, y any) bool { return reflect.DeepEqual(x, y) }
				if !lazycache.DeleteFromList(ctx, a.c, args[0], args[1], parseValue(args[2]), eq) {
					return fmt.Errorf("%s/%s: no list: %w", args[0], args[1], errMiss)
				}
				return nil
			})
		},
	}
}
