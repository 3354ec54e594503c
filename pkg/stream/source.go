package stream

import (
	"bufio"
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// AscendingSource emits (subtaskIndex, 0)..(subtaskIndex, numElements) and
// then idles until cancelled, so the last element stays queryable while the
// job runs.
func AscendingSource(numElements int64) SourceFunc[KeyCount] {
	return func(ctx context.Context, subtask Subtask, collect func(KeyCount) error) error {
		key := int32(subtask.Index)
		for value := int64(0); value <= numElements; value++ {
			if err := ctx.Err(); err != nil {
				return nil
			}
			if err := collect(KeyCount{Key: key, Count: value}); err != nil {
				return err
			}
		}
		<-ctx.Done()
		return nil
	}
}

// KeyRangeSource emits (key, 1) records with keys drawn uniformly from
// [0, numKeys) until cancelled.
func KeyRangeSource(numKeys int) SourceFunc[KeyCount] {
	return func(ctx context.Context, subtask Subtask, collect func(KeyCount) error) error {
		for {
			if err := ctx.Err(); err != nil {
				return nil
			}
			record := KeyCount{Key: int32(rand.IntN(numKeys)), Count: 1}
			if err := collect(record); err != nil {
				return err
			}
			// Mild slow down so state keeps mutating without spinning a core.
			time.Sleep(time.Millisecond)
		}
	}
}

// FileSource streams the lines of every file matching the doublestar
// pattern, sharded across subtasks, parsing each line into a record. Lines
// for which parse returns false are skipped. After all input is consumed the
// source idles until cancelled so the resulting state stays queryable.
func FileSource[T any](pattern string, parse func(line string) (T, bool)) SourceFunc[T] {
	return func(ctx context.Context, subtask Subtask, collect func(T) error) error {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return fmt.Errorf("globbing %q: %w", pattern, err)
		}

		for i, path := range matches {
			if i%subtask.Parallelism != subtask.Index {
				continue
			}
			if err := streamLines(ctx, path, parse, collect); err != nil {
				return err
			}
		}

		<-ctx.Done()
		return nil
	}
}

func streamLines[T any](ctx context.Context, path string, parse func(string) (T, bool), collect func(T) error) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		record, ok := parse(scanner.Text())
		if !ok {
			continue
		}
		if err := collect(record); err != nil {
			return err
		}
	}
	return scanner.Err()
}
