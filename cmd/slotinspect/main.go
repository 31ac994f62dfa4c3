// slotinspect prints the save slots of a savemaster installation without
// activating any of them.
//
// Usage:
//
//	slotinspect                              list used slots
//	slotinspect <slot>                       list the keys of one slot
//	slotinspect <slot> <owner> <provider>    dump one provider payload
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/l1jgo/savemaster/internal/config"
	"github.com/l1jgo/savemaster/internal/persist"
	"github.com/l1jgo/savemaster/internal/save"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfgPath := "config/savemaster.toml"
	if p := os.Getenv("SAVEMASTER_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backend, err := persist.OpenBackend(ctx, cfg.Storage, zap.NewNop())
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	slots := persist.NewSlotFiles(persist.SlotFilesOptions{
		Backend:  backend,
		MaxSlots: cfg.Slots.MaxSlots,
		Compress: cfg.Storage.Compress,
	})
	defer slots.Close()

	var builder save.Builder
	master := builder.Build(save.Options{Slots: cfg.Slots, Storage: slots, IOTimeout: cfg.Storage.IOTimeout})
	defer master.Close()

	switch len(args) {
	case 0:
		return listSlots(ctx, master, slots)
	case 1:
		slot, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("bad slot %q", args[0])
		}
		return listKeys(ctx, slots, slot)
	case 3:
		slot, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("bad slot %q", args[0])
		}
		return dumpPayload(master, slot, args[1], args[2])
	default:
		return fmt.Errorf("usage: slotinspect [<slot> [<owner> <provider>]]")
	}
}

func listSlots(ctx context.Context, master *save.Master, slots *persist.SlotFiles) error {
	used := slots.UsedSlots(ctx)
	if len(used) == 0 {
		fmt.Println("no used slots")
		return nil
	}
	fmt.Printf("%-6s %-8s %-20s %-12s %s\n", "slot", "version", "created", "played", "entries")
	for _, slot := range used {
		st := slots.LoadSave(ctx, slot, false)
		if st == nil {
			fmt.Printf("%-6d unreadable\n", slot)
			continue
		}
		fmt.Printf("%-6d %-8d %-20s %-12s %d\n",
			slot,
			master.SaveVersion(slot),
			master.SaveCreationTime(slot).Local().Format("2006-01-02 15:04:05"),
			master.SaveTimePlayed(slot).Round(time.Second),
			st.Len())
	}
	return nil
}

func listKeys(ctx context.Context, slots *persist.SlotFiles, slot int) error {
	st := slots.LoadSave(ctx, slot, false)
	if st == nil {
		return fmt.Errorf("slot %d is empty", slot)
	}
	for _, e := range st.Entries() {
		fmt.Printf("%s\t%s\t%d bytes\n", e.Key, e.Scope, len(e.Payload))
	}
	return nil
}

func dumpPayload(master *save.Master, slot int, owner, provider string) error {
	raw, ok := master.SaveablePayload(slot, owner, provider)
	if !ok {
		return fmt.Errorf("no payload for %s in slot %d", save.ComposeKey(owner, provider), slot)
	}
	v, ok := save.GetSaveableData[any](master, slot, owner, provider)
	if !ok {
		// not JSON: print as stored
		fmt.Println(raw)
		return nil
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
