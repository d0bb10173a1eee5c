package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/minasamir1401/werete/internal/items"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	if _, ok, err := d.GetSetting(ctx, "scrape_interval"); err != nil || ok {
		t.Fatalf("GetSetting on empty table = ok %v err %v", ok, err)
	}
	if err := d.SetSetting(ctx, "scrape_interval", "90"); err != nil {
		t.Fatal(err)
	}
	if err := d.SetSetting(ctx, "scrape_interval", "120"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := d.GetSetting(ctx, "scrape_interval")
	if err != nil || !ok || v != "120" {
		t.Fatalf("GetSetting = %q %v %v, want 120", v, ok, err)
	}
	if _, ok, _ := d.GetSetting(ctx, "country_scrape_interval"); ok {
		t.Fatal("unset key reported as present")
	}
}

func TestSeedSourceSettingsKeepsExistingRows(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	if err := d.SeedSourceSettings(ctx, "silver", []string{"safehavenhub", "goldpricelive_silver"}); err != nil {
		t.Fatal(err)
	}
	if err := d.SetSourceEnabled(ctx, "silver", "safehavenhub", false); err != nil {
		t.Fatal(err)
	}
	if err := d.SeedSourceSettings(ctx, "silver", []string{"safehavenhub", "goldpricelive_silver"}); err != nil {
		t.Fatal(err)
	}
	rows, err := d.ListSourceSettings(ctx, "silver")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].SourceName != "safehavenhub" || rows[0].Enabled {
		t.Fatalf("first row = %+v, want disabled safehavenhub", rows[0])
	}
	if err := d.SetSourceEnabled(ctx, "silver", "missing", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetSourceEnabled(missing) err = %v, want ErrNotFound", err)
	}
}

func TestReplaceSourceSettingsReorders(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	_ = d.SeedSourceSettings(ctx, "currency", []string{"ta3weem", "egrates", "banklive"})
	err := d.ReplaceSourceSettings(ctx, "currency", []SourceSetting{
		{SourceName: "banklive", Enabled: true, Priority: 1},
		{SourceName: "ta3weem", Enabled: true, Priority: 2},
		{SourceName: "egrates", Enabled: false, Priority: 3},
	})
	if err != nil {
		t.Fatal(err)
	}
	rows, _ := d.ListSourceSettings(ctx, "currency")
	got := []string{rows[0].SourceName, rows[1].SourceName, rows[2].SourceName}
	want := []string{"banklive", "ta3weem", "egrates"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	if rows[2].Enabled {
		t.Fatal("egrates should be disabled")
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)
	k := items.Key{Asset: items.AssetGold, Country: "egypt", Instrument: "21"}

	boom := errors.New("boom")
	err := d.WithTx(ctx, func(tx *Tx) error {
		if err := tx.UpsertLatest(ctx, PriceRow{Key: k, Sell: 4500, Buy: 4450, Currency: "EGP", SourceName: "GoldEra", Status: items.StatusPrimary, LastUpdate: time.Now()}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx err = %v, want boom", err)
	}
	if _, err := d.GetLatest(ctx, k); !errors.Is(err, ErrNotFound) {
		t.Fatalf("row survived rollback: err = %v", err)
	}
}

func TestOverrideKeys(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)
	k := items.Key{Asset: items.AssetGold, Country: "egypt", Instrument: "21"}

	if got := OverrideSettingKey(k); got != "manual_price:gold:egypt:21" {
		t.Fatalf("OverrideSettingKey = %q", got)
	}
	back, ok := ParseOverrideKey(OverrideSettingKey(k))
	if !ok || back != k {
		t.Fatalf("ParseOverrideKey = %+v %v", back, ok)
	}
	if _, ok := ParseOverrideKey("manual_price:gold:egypt"); ok {
		t.Fatal("short key parsed")
	}

	_ = d.SetSetting(ctx, OverrideSettingKey(k), "4500")
	_ = d.SetSetting(ctx, "scrape_interval", "60")
	list, err := d.ListOverrides(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Key != k || list[0].Price != 4500 {
		t.Fatalf("ListOverrides = %+v", list)
	}

	other := items.Key{Asset: items.AssetGold, Country: "egypt", Instrument: "24"}
	err = d.WithTx(ctx, func(tx *Tx) error {
		active, err := tx.ActiveOverrides(ctx, []items.Key{k, other})
		if err != nil {
			return err
		}
		if !active[k] || active[other] {
			t.Errorf("ActiveOverrides = %v", active)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestBackupToDir(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)
	_ = d.SetSetting(ctx, "scrape_interval", "60")

	dir := filepath.Join(t.TempDir(), "backups")
	path, err := d.BackupToDir(ctx, dir, time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "werete-20250115-100000.db" {
		t.Fatalf("backup path = %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("backup file missing: %v", err)
	}
	restored, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer restored.Close()
	if v, ok, _ := restored.GetSetting(ctx, "scrape_interval"); !ok || v != "60" {
		t.Fatalf("restored setting = %q %v", v, ok)
	}
}
