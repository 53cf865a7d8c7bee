package cmd

import (
	"context"
	"iter"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/eslsoft/dictsync/internal/entity"
	"github.com/eslsoft/dictsync/internal/repository"
)

func typesFromConfig(key string) []string {
	return normalizeNames(viper.GetStringSlice(key))
}

// normalizeNames trims and dedupes type codes or source names. Both are case sensitive.
func normalizeNames(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	result := make([]string, 0, len(values))
	for _, value := range values {
		name := strings.TrimSpace(value)
		if name == "" {
			continue
		}
		result = append(result, name)
	}
	if len(result) == 0 {
		return nil
	}
	return lo.Uniq(result)
}

// storeTypes reads every full type held by st.
func storeTypes(ctx context.Context, st repository.Store) iter.Seq2[*entity.DictType, error] {
	return func(yield func(*entity.DictType, error) bool) {
		codes, err := st.TypeKeys(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, code := range codes {
			t, err := st.GetType(ctx, code)
			if err != nil {
				yield(nil, err)
				return
			}
			if t == nil {
				continue
			}
			if !yield(t, nil) {
				return
			}
		}
	}
}

func bindFlagToViper(key string, flag *pflag.Flag) {
	if flag == nil {
		return
	}
	cobra.CheckErr(viper.BindPFlag(key, flag))
}
