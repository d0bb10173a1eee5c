package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/minasamir1401/werete/internal/items"
)

// serve returns a server answering every request with body and counting hits.
func serve(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "Mozilla/5.0") {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func pointAt(a Adapter, url string) *htmlAdapter {
	h := a.(*htmlAdapter)
	h.urlFor = func(string) (string, error) { return url, nil }
	return h
}

func testClient() *Client { return NewClient(15 * time.Second) }

func byInstrument(obs []Observation) map[string]Observation {
	out := map[string]Observation{}
	for _, o := range obs {
		out[o.Key.Instrument] = o
	}
	return out
}

func TestGoldEraParsesKaratTable(t *testing.T) {
	html := `<table>
		<tr><th>العيار</th><th>بيع</th><th>شراء</th></tr>
		<tr><td>عيار 24</td><td>5,200</td><td>5,150</td></tr>
		<tr><td>عيار ٢١</td><td>٤٥٥٠</td><td>٤٥٠٠</td></tr>
		<tr><td>عيار 18</td><td>3</td><td>2</td></tr>
	</table>`
	srv, hits := serve(t, 200, html)
	a := pointAt(NewGoldEra(testClient()), srv.URL)

	obs := a.Fetch(context.Background(), "")
	if *hits != 1 {
		t.Fatalf("GET count = %d, want 1", *hits)
	}
	got := byInstrument(obs)
	if len(got) != 2 {
		t.Fatalf("got %d observations, want 2 (%+v)", len(got), obs)
	}
	if o := got["21"]; o.Sell != 4550 || o.Buy != 4500 || o.Currency != "EGP" || o.Source != "GoldEra" {
		t.Fatalf("21k = %+v", o)
	}
	if _, ok := got["18"]; ok {
		t.Fatal("out-of-band 18k price was kept")
	}
	if o := got["24"]; o.Key.Asset != items.AssetGold || o.Key.Country != "egypt" {
		t.Fatalf("24k key = %+v", o.Key)
	}
	if a.LastError() != "" {
		t.Fatalf("LastError = %q after success", a.LastError())
	}
}

func TestGoldBullionUsesMaxAsSell(t *testing.T) {
	html := `<table><tr><td>عيار 21</td><td>4500</td><td>4550</td></tr></table>`
	srv, _ := serve(t, 200, html)
	obs := pointAt(NewGoldBullion(testClient()), srv.URL).Fetch(context.Background(), "")
	if len(obs) != 1 || obs[0].Sell != 4550 || obs[0].Buy != 4500 {
		t.Fatalf("obs = %+v", obs)
	}
}

func TestIsaghaReadsBuyFromFourthColumn(t *testing.T) {
	html := `<div class="desktop-table"><table><tbody>
		<tr><td>عيار 21</td><td>4,560</td><td>+10</td><td>4,520</td></tr>
	</tbody></table></div>`
	srv, _ := serve(t, 200, html)
	obs := pointAt(NewIsagha(testClient()), srv.URL).Fetch(context.Background(), "")
	if len(obs) != 1 || obs[0].Sell != 4560 || obs[0].Buy != 4520 {
		t.Fatalf("obs = %+v", obs)
	}
}

func TestSouqPriceTodayUsesSecondTable(t *testing.T) {
	html := `<table><tr><td>عيار 21</td><td>1</td><td>1</td></tr></table>
	<table>
		<tr><td>العيار</td><td>بيع</td><td>شراء</td></tr>
		<tr><td>ذهب عيار 21</td><td>4500</td><td>4550</td></tr>
		<tr><td>جنيه ذهب</td><td>36400</td><td>36000</td></tr>
	</table>`
	srv, _ := serve(t, 200, html)
	obs := pointAt(NewSouqPriceToday(testClient()), srv.URL).Fetch(context.Background(), "")
	if len(obs) != 1 || obs[0].Key.Instrument != "21" || obs[0].Sell != 4550 {
		t.Fatalf("obs = %+v", obs)
	}
}

func TestGoldPriceLiveCardsIgnoreWeightsAndOunce(t *testing.T) {
	html := `
	<a href="/kerat-21"><div>عيار 21</div><div class="col-12 text-center">بيع 4550 شراء 4500 وزن 8</div></a>
	<a href="/kerat-24"><div>عيار 24</div><div class="col-12 text-center">5200 5150 أوقية 150000</div></a>`
	srv, _ := serve(t, 200, html)
	got := byInstrument(pointAt(NewGoldPriceLive(testClient()), srv.URL).Fetch(context.Background(), ""))
	if o := got["21"]; o.Sell != 4550 || o.Buy != 4500 {
		t.Fatalf("21k = %+v", o)
	}
	if o := got["24"]; o.Sell != 5200 || o.Buy != 5150 {
		t.Fatalf("24k = %+v", o)
	}
}

func TestGoldPriceTodayCountry(t *testing.T) {
	html := `<table><tr><td>عيار 21</td><td>325.50 ريال</td></tr><tr><td>عيار 24</td><td>372</td></tr></table>`
	srv, _ := serve(t, 200, html)
	obs := pointAt(NewGoldPriceToday(testClient()), srv.URL).Fetch(context.Background(), "saudi-arabia")
	got := byInstrument(obs)
	o := got["21"]
	if o.Sell != 325.5 || o.Buy != 325.5 || o.Currency != "SAR" || o.Key.Country != "saudi-arabia" {
		t.Fatalf("21k = %+v", o)
	}
	if len(got) != 2 {
		t.Fatalf("got %d observations", len(got))
	}
}

func TestGoldPriceTodayRejectsUnknownCountry(t *testing.T) {
	a := NewGoldPriceToday(testClient())
	if obs := a.Fetch(context.Background(), "atlantis"); len(obs) != 0 {
		t.Fatalf("obs = %+v", obs)
	}
	if !strings.Contains(a.LastError(), "atlantis") {
		t.Fatalf("LastError = %q", a.LastError())
	}
}

func TestTa3weemBankRows(t *testing.T) {
	html := `<table><tbody>
		<tr><td><a><span>دولار أمريكي (USD)</span></a></td><td><span>48.50</span></td><td><span>48.60</span></td></tr>
		<tr><td><a><span>يورو (EUR)</span></a></td><td>52.10</td><td>52.35</td></tr>
		<tr><td>إعلان</td><td>-</td><td>-</td></tr>
		<tr><td><a><span>بيتكوين (XBT)</span></a></td><td>3000</td><td>3100</td></tr>
	</tbody></table>`
	srv, _ := serve(t, 200, html)
	got := byInstrument(pointAt(NewTa3weemBank(testClient()), srv.URL).Fetch(context.Background(), "nbe"))
	if o := got["nbe/USD"]; o.Buy != 48.5 || o.Sell != 48.6 || o.Key.Asset != items.AssetCurrency {
		t.Fatalf("USD = %+v", o)
	}
	if _, ok := got["nbe/EUR"]; !ok {
		t.Fatalf("EUR missing: %+v", got)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows", len(got))
	}
}

func TestEgratesBankCodeFromAltOrHref(t *testing.T) {
	html := `<table><tbody>
		<tr><td>1</td><td><img alt="دولار/USD"></td><td>48.50</td><td>48.60</td></tr>
		<tr><td>2</td><td><img></td><td><a href="/currency/EUR">52.10</a></td><td>52.35</td></tr>
	</tbody></table>`
	srv, _ := serve(t, 200, html)
	got := byInstrument(pointAt(NewEgratesBank(testClient()), srv.URL).Fetch(context.Background(), "bdc"))
	if o := got["bdc/USD"]; o.Sell != 48.6 || o.Buy != 48.5 {
		t.Fatalf("USD = %+v", o)
	}
	if o := got["bdc/EUR"]; o.Sell != 52.35 {
		t.Fatalf("EUR = %+v", o)
	}
}

func TestBankLiveBankTable(t *testing.T) {
	html := `<table class="banklive-tablse">
		<tr><th>العملة</th><th>شراء</th><th>بيع</th></tr>
		<tr><td><span class="code">USDEGP</span></td><td><span class="bankRate">48.45</span></td><td><span class="bankRate">48.55</span></td></tr>
	</table>`
	srv, _ := serve(t, 200, html)
	obs := pointAt(NewBankLiveBank(testClient()), srv.URL).Fetch(context.Background(), "nbe")
	if len(obs) != 1 || obs[0].Key.Instrument != "nbe/USD" || obs[0].Sell != 48.55 || obs[0].Buy != 48.45 {
		t.Fatalf("obs = %+v", obs)
	}
}

func TestTa3weemAllBanksCanonicalBankIDs(t *testing.T) {
	html := `<table><tbody>
		<tr><td><a href="/ar/banks/national-bank-of-egypt-nbe"><span>البنك الأهلي المصري</span></a></td><td>48.50 +0.1</td><td>48.60 +0.1</td></tr>
		<tr><td><a href="/ar/banks/some-new-bank"><span>بنك جديد</span></a></td><td>48.40</td><td>48.70</td></tr>
		<tr><td>بدون رابط</td><td>1</td><td>1</td></tr>
	</tbody></table>`
	srv, _ := serve(t, 200, html)
	got := byInstrument(pointAt(NewTa3weemAllBanks(testClient()), srv.URL).Fetch(context.Background(), "USD"))
	if o := got["USD/national-bank-of-egypt-nbe"]; o.Sell != 48.6 || o.Buy != 48.5 || o.Key.Asset != items.AssetBankFX {
		t.Fatalf("nbe = %+v", o)
	}
	if _, ok := got["USD/some-new-bank"]; !ok {
		t.Fatalf("unlisted bank missing: %+v", got)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows", len(got))
	}
}

func TestEgratesAllBanksMatchesCatalogName(t *testing.T) {
	html := `<table><tbody>
		<tr><td><a href="/banks/6">بنك القاهرة</a></td><td>48.45</td><td>48.55</td></tr>
		<tr><td><a href="/banks/99">Tiny Bank</a></td><td>48.40</td><td>48.50</td></tr>
	</tbody></table>`
	srv, _ := serve(t, 200, html)
	got := byInstrument(pointAt(NewEgratesAllBanks(testClient()), srv.URL).Fetch(context.Background(), "USD"))
	if _, ok := got["USD/banque-du-caire-bdc"]; !ok {
		t.Fatalf("bdc missing: %+v", got)
	}
	if _, ok := got["USD/egrates_99"]; !ok {
		t.Fatalf("site-scoped id missing: %+v", got)
	}
}

func TestSafeHavenHubPurities(t *testing.T) {
	html := `<table>
		<tr><th>الصنف</th><th>بيع</th><th>شراء</th><th>التغير</th><th>%</th></tr>
		<tr><td>فضة 999</td><td>62.50</td><td>61.00</td><td>+0.5</td><td>0.8%</td></tr>
		<tr><td>فضة 925</td><td>57.80</td><td>56.40</td><td>+0.4</td><td>0.7%</td></tr>
		<tr><td>الأوقية</td><td>$ 32.10</td><td>$ 32.00</td><td>+0.2</td><td>0.6%</td></tr>
	</table>`
	srv, _ := serve(t, 200, html)
	got := byInstrument(pointAt(NewSafeHavenHub(testClient()), srv.URL).Fetch(context.Background(), ""))
	if o := got["999"]; o.Sell != 62.5 || o.Buy != 61 {
		t.Fatalf("999 = %+v", o)
	}
	if o := got[items.SilverOunceUSDKey]; o.Sell != 32.1 || o.Currency != "USD" {
		t.Fatalf("ounce = %+v", o)
	}
	if len(got) != 3 {
		t.Fatalf("got %d rows", len(got))
	}
}

func TestSafeHavenHubRequiresFineSilver(t *testing.T) {
	html := `<table><tr><td>فضة 925</td><td>57.80</td><td>56.40</td><td>+0.4</td><td>0.7%</td></tr></table>`
	srv, _ := serve(t, 200, html)
	a := pointAt(NewSafeHavenHub(testClient()), srv.URL)
	if obs := a.Fetch(context.Background(), ""); len(obs) != 0 {
		t.Fatalf("obs = %+v", obs)
	}
	if a.LastError() == "" {
		t.Fatal("LastError empty")
	}
}

func TestGoldPriceLiveSilverFallsBackToTable(t *testing.T) {
	html := `<div class="mb-5">سعر الفضة غير متاح</div>
	<table class="local-cur"><tr><td>1 جرام فضة</td><td>62.75 جنيه</td></tr></table>`
	srv, _ := serve(t, 200, html)
	obs := pointAt(NewGoldPriceLiveSilver(testClient()), srv.URL).Fetch(context.Background(), "")
	if len(obs) != 1 || obs[0].Key.Instrument != "999" || obs[0].Sell != 62.75 {
		t.Fatalf("obs = %+v", obs)
	}
}

func TestFetchNon200IsEmptyWithLastError(t *testing.T) {
	srv, hits := serve(t, http.StatusServiceUnavailable, "maintenance")
	a := pointAt(NewGoldEra(testClient()), srv.URL)
	if obs := a.Fetch(context.Background(), ""); len(obs) != 0 {
		t.Fatalf("obs = %+v", obs)
	}
	if *hits != 1 {
		t.Fatalf("GET count = %d, want 1 (no retry)", *hits)
	}
	if !strings.Contains(a.LastError(), "503") {
		t.Fatalf("LastError = %q", a.LastError())
	}
}

func TestFetchRecoversFromParsePanic(t *testing.T) {
	srv, _ := serve(t, 200, "<table></table>")
	a := pointAt(NewGoldEra(testClient()), srv.URL)
	a.parse = func(*goquery.Document, string, *batch) error { panic("bad selector") }
	if obs := a.Fetch(context.Background(), ""); obs != nil {
		t.Fatalf("obs = %+v", obs)
	}
	if !strings.Contains(a.LastError(), "bad selector") {
		t.Fatalf("LastError = %q", a.LastError())
	}
}

func TestParseHistoryChart(t *testing.T) {
	html := `<script>var x = 1;</script>
	<script>
	new Chart(document.getElementById("goldchart-id"), {
		data: { labels: ["السبت 01-04", "الأحد 01-05", 'الاثنين 12-30',], datasets: [{ data: [4200, "4,242", 4100,], }] }
	});
	</script>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	points, err := parseHistoryChart(doc, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 9 {
		t.Fatalf("got %d points, want 9", len(points))
	}
	first := points[0]
	if first.Key.Instrument != "21" || first.Price != 4200 || first.At.Year() != 2025 || first.At.Month() != time.January || first.At.Day() != 4 {
		t.Fatalf("first point = %+v", first)
	}
	if points[1].Key.Instrument != "24" || points[1].Price != 4800 || points[1].Source != historyDerivedSource {
		t.Fatalf("derived 24k = %+v", points[1])
	}
	if points[2].Key.Instrument != "18" || points[2].Price != 3600 {
		t.Fatalf("derived 18k = %+v", points[2])
	}
	if last := points[6]; last.At.Year() != 2024 || last.At.Month() != time.December {
		t.Fatalf("December label should roll back a year: %+v", last)
	}
}

func TestClientCapsBodySize(t *testing.T) {
	srv, _ := serve(t, 200, strings.Repeat("a", maxBodySize+1024))
	body, err := testClient().Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if len(body) != maxBodySize {
		t.Fatalf("body length = %d, want %d", len(body), maxBodySize)
	}
}
