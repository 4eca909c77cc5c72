package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/service"
)

const scenarioCSV = `Name,Phone,City,Type
ali khan,0300-1234567,lahore,corporate
sara ahmed,,karachi,smb
bilal raza,+92 321 7654321,islamabad,individual
`

func newImporter(gw *mockGateway, chunk int) (*service.Importer, *progressRecorder) {
	return service.NewImporter(gw, newStore(), chunk, newMetrics(), zap.NewNop()), &progressRecorder{}
}

func rowsCSV(n int, phone func(i int) string) string {
	var b strings.Builder
	b.WriteString("name,phone\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "lead %d,%s\n", i, phone(i))
	}
	return b.String()
}

func TestImportFile_ScenarioA(t *testing.T) {
	gw := newMockGateway()
	st := newStore()
	im := service.NewImporter(gw, st, 25, newMetrics(), zap.NewNop())
	progress := &progressRecorder{}

	res, err := im.ImportFile(context.Background(), testSession, "leads.csv", []byte(scenarioCSV), progress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Contacts) != 2 {
		t.Fatalf("expected 2 contacts, got %d", len(res.Contacts))
	}
	if res.TotalRows != 3 || res.Dropped != 1 {
		t.Errorf("expected 3 rows with 1 dropped, got %d/%d", res.TotalRows, res.Dropped)
	}

	stored, _ := st.ListContacts(context.Background(), testSession.TenantID)
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored contacts, got %d", len(stored))
	}

	byFirst := map[string]domain.Contact{}
	for _, c := range stored {
		byFirst[c.FirstName] = c
	}
	ali, ok := byFirst["Ali"]
	if !ok {
		t.Fatalf("expected title-cased Ali, got %+v", byFirst)
	}
	if ali.LastName != "Khan" || ali.City != "Lahore" {
		t.Errorf("expected title-cased fields, got %q %q", ali.LastName, ali.City)
	}
	if ali.Phone != "0300 1234567" {
		t.Errorf("expected canonical phone, got %q", ali.Phone)
	}
	if ali.LeadCategory != domain.CategoryCorporate {
		t.Errorf("expected corporate, got %s", ali.LeadCategory)
	}
	if bilal := byFirst["Bilal"]; bilal.Phone != "0321 7654321" {
		t.Errorf("expected folded +92 prefix, got %q", bilal.Phone)
	}
	for _, c := range stored {
		if len(c.Tags) != 1 || c.Tags[0] != domain.TagBulkImport {
			t.Errorf("expected import tag on %s, got %v", c.FirstName, c.Tags)
		}
		if c.AssignedTo != testSession.UserID || c.TenantID != testSession.TenantID {
			t.Errorf("unexpected ownership %s/%s", c.TenantID, c.AssignedTo)
		}
	}

	if got := progress.Values(); got[len(got)-1] != 100 {
		t.Errorf("expected final progress 100, got %v", got)
	}
}

func TestImportRows_ProgressMonotonicAndCompletesOnce(t *testing.T) {
	gw := newMockGateway()
	im, progress := newImporter(gw, 15)

	data := rowsCSV(40, func(i int) string { return fmt.Sprintf("0300 %07d", i) })
	if _, err := im.ImportFile(context.Background(), testSession, "leads.csv", []byte(data), progress); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []int{38, 75, 99, 100}
	got := progress.Values()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("expected progress %v, got %v", want, got)
	}
	if gw.Calls(domain.TaskMapLeadRows) != 3 {
		t.Errorf("expected 3 chunk calls, got %d", gw.Calls(domain.TaskMapLeadRows))
	}
}

func TestImportRows_HeaderOnlyReportsCompletion(t *testing.T) {
	gw := newMockGateway()
	im, progress := newImporter(gw, 25)

	res, err := im.ImportFile(context.Background(), testSession, "leads.csv", []byte("name,phone\n"), progress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Contacts) != 0 {
		t.Errorf("expected no contacts, got %d", len(res.Contacts))
	}
	if got := progress.Values(); len(got) != 1 || got[0] != 100 {
		t.Errorf("expected a single 100, got %v", got)
	}
	if gw.Calls(domain.TaskMapLeadRows) != 0 {
		t.Error("gateway should not be called for an empty table")
	}
}

func TestImportRows_FailedChunkIsSkipped(t *testing.T) {
	gw := newMockGateway()
	calls := 0
	gw.mapRows = func(ctx context.Context, rows []map[string]string) ([]domain.MappedLead, error) {
		calls++
		if calls == 2 {
			return nil, errModelDown
		}
		return echoMapper(ctx, rows)
	}
	im, progress := newImporter(gw, 15)

	data := rowsCSV(45, func(i int) string { return fmt.Sprintf("0300 %07d", i) })
	res, err := im.ImportFile(context.Background(), testSession, "leads.csv", []byte(data), progress)
	if err != nil {
		t.Fatalf("chunk failure must not abort the import: %v", err)
	}
	if len(res.Contacts) != 30 || res.FailedChunks != 1 || res.Dropped != 15 {
		t.Errorf("expected 30 imported, 1 failed chunk, 15 dropped; got %d/%d/%d",
			len(res.Contacts), res.FailedChunks, res.Dropped)
	}
	if got := progress.Values(); got[len(got)-1] != 100 {
		t.Errorf("progress must still complete, got %v", got)
	}
}

func TestImportRows_AllChunksFail(t *testing.T) {
	gw := failingGateway()
	im, progress := newImporter(gw, 15)

	res, err := im.ImportFile(context.Background(), testSession, "leads.csv", []byte(scenarioCSV), progress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Contacts) != 0 || res.FailedChunks != 1 {
		t.Errorf("expected empty result with one failed chunk, got %+v", res)
	}
}

func TestImportRows_PhoneGate(t *testing.T) {
	gw := newMockGateway()
	gw.mapRows = func(context.Context, []map[string]string) ([]domain.MappedLead, error) {
		return []domain.MappedLead{
			{FirstName: "no", Phone: ""},
			{FirstName: "short", Phone: "12345"},
			{FirstName: "letters", Phone: "call me"},
			{FirstName: "good", Phone: "03001234567"},
		}, nil
	}
	im, _ := newImporter(gw, 15)

	res, err := im.ImportRows(context.Background(), testSession, make([]map[string]string, 4), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Contacts) != 1 || res.Contacts[0].FirstName != "Good" {
		t.Errorf("only the row with a usable phone may be imported, got %+v", res.Contacts)
	}
}

func TestImportRows_ModelCannotInflateChunk(t *testing.T) {
	gw := newMockGateway()
	gw.mapRows = func(_ context.Context, rows []map[string]string) ([]domain.MappedLead, error) {
		out := make([]domain.MappedLead, 0, 3*len(rows))
		for i := 0; i < 3*len(rows); i++ {
			out = append(out, domain.MappedLead{FirstName: "x", Phone: fmt.Sprintf("0300 %07d", i)})
		}
		return out, nil
	}
	im, _ := newImporter(gw, 15)

	res, err := im.ImportRows(context.Background(), testSession, make([]map[string]string, 2), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Contacts) != 2 {
		t.Errorf("expected at most 2 contacts, got %d", len(res.Contacts))
	}
}

func TestImportRows_DeduplicatesPhones(t *testing.T) {
	gw := newMockGateway()
	st := newStore()
	im := service.NewImporter(gw, st, 15, newMetrics(), zap.NewNop())
	ctx := context.Background()

	if _, err := st.AddContact(ctx, domain.Contact{TenantID: testSession.TenantID, FirstName: "Existing", Phone: "0300 1234567"}); err != nil {
		t.Fatal(err)
	}

	data := "name,phone\nali,0300-1234567\nsara,0321 7654321\nsara again,+923217654321\n"
	res, err := im.ImportFile(ctx, testSession, "leads.csv", []byte(data), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Contacts) != 1 || res.Dropped != 2 {
		t.Errorf("expected 1 imported and 2 dropped, got %d/%d", len(res.Contacts), res.Dropped)
	}
}

func TestImportRows_PhoneTakenDuringImportIsDropped(t *testing.T) {
	gw := newMockGateway()
	st := newStore()
	im := service.NewImporter(gw, st, 25, newMetrics(), zap.NewNop())
	ctx := context.Background()

	// a manual entry lands while the chunk is with the model
	gw.mapRows = func(ctx context.Context, rows []map[string]string) ([]domain.MappedLead, error) {
		if _, err := st.AddContact(ctx, domain.Contact{TenantID: testSession.TenantID, FirstName: "Manual", Phone: "03001234567"}); err != nil {
			t.Fatal(err)
		}
		return echoMapper(ctx, rows)
	}

	data := "name,phone\nali khan,0300-1234567\nsara ahmed,0321 7654321\nbilal raza,0333 1112223\n"
	progress := &progressRecorder{}
	res, err := im.ImportFile(ctx, testSession, "leads.csv", []byte(data), progress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Contacts) != 2 || res.Dropped != 1 {
		t.Errorf("expected 2 imported and 1 dropped, got %d/%d", len(res.Contacts), res.Dropped)
	}
	for _, c := range res.Contacts {
		if c.FirstName == "Ali" {
			t.Errorf("conflicting row should not be reported as imported")
		}
	}
	stored, _ := st.ListContacts(ctx, testSession.TenantID)
	if len(stored) != 3 {
		t.Errorf("expected manual entry plus 2 imported, got %d", len(stored))
	}
	if v := progress.Values(); len(v) == 0 || v[len(v)-1] != 100 {
		t.Errorf("expected completion at 100, got %v", v)
	}
}

func TestImportFile_ParseFailureCommitsNothing(t *testing.T) {
	gw := newMockGateway()
	st := newStore()
	im := service.NewImporter(gw, st, 25, newMetrics(), zap.NewNop())
	progress := &progressRecorder{}

	for _, tc := range []struct {
		name string
		file string
		data []byte
	}{
		{"empty", "leads.csv", []byte("   \n")},
		{"legacy xls", "leads.xls", []byte("anything")},
		{"ole magic", "leads.bin", []byte{0xD0, 0xCF, 0x11, 0xE0, 0x00}},
		{"broken zip", "leads.xlsx", []byte("PK\x03\x04garbage")},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := im.ImportFile(context.Background(), testSession, tc.file, tc.data, progress)
			var fileErr *domain.ErrImportFile
			if !errors.As(err, &fileErr) {
				t.Fatalf("expected ErrImportFile, got %v", err)
			}
		})
	}

	if gw.Calls(domain.TaskMapLeadRows) != 0 {
		t.Error("gateway must not be called for unreadable files")
	}
	if list, _ := st.ListContacts(context.Background(), testSession.TenantID); len(list) != 0 {
		t.Error("nothing may be committed")
	}
	if len(progress.Values()) != 0 {
		t.Errorf("no progress expected, got %v", progress.Values())
	}
}

func TestImportRows_CancellationCommitsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := newMockGateway()
	calls := 0
	gw.mapRows = func(c context.Context, rows []map[string]string) ([]domain.MappedLead, error) {
		calls++
		if calls == 2 {
			cancel()
			return nil, c.Err()
		}
		return echoMapper(c, rows)
	}
	st := newStore()
	im := service.NewImporter(gw, st, 15, newMetrics(), zap.NewNop())

	data := rowsCSV(45, func(i int) string { return fmt.Sprintf("0300 %07d", i) })
	_, err := im.ImportFile(ctx, testSession, "leads.csv", []byte(data), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if list, _ := st.ListContacts(context.Background(), testSession.TenantID); len(list) != 0 {
		t.Errorf("cancelled import committed %d contacts", len(list))
	}
	if calls != 2 {
		t.Errorf("expected the import to stop after the cancelled chunk, got %d calls", calls)
	}
}

func TestImportFile_XLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	_ = f.SetSheetRow(sheet, "A1", &[]any{"Name", "PHONE", "City"})
	_ = f.SetSheetRow(sheet, "A2", &[]any{"zara malik", "03451234567", "multan"})
	_ = f.SetSheetRow(sheet, "A3", &[]any{"no phone", "", "quetta"})
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("building workbook: %v", err)
	}

	gw := newMockGateway()
	im, _ := newImporter(gw, 25)

	res, err := im.ImportFile(context.Background(), testSession, "leads.xlsx", buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Contacts) != 1 || res.Contacts[0].FirstName != "Zara" || res.Contacts[0].City != "Multan" {
		t.Errorf("unexpected contacts %+v", res.Contacts)
	}
}
