package signin

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/phillip-england/openhouse/internal/session"
)

func assertGuard(t *testing.T, sess *session.Session) {
	t.Helper()
	if sess.Page == session.PageIntake && sess.Agent == "" {
		t.Fatalf("intake page reached without an authenticated agent: %+v", sess)
	}
}

func TestDispatchLoginScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "100 Main St")
	sess := newSession(t)

	screen := f.controller.Dispatch(ctx, sess, View())
	if screen.Page != session.PageLogin {
		t.Fatalf("expected login page, got %q", screen.Page)
	}

	screen = f.controller.Dispatch(ctx, sess, Login("alice", "wrong"))
	if screen.Page != session.PageLogin || sess.Page != session.PageLogin {
		t.Fatalf("failed login left login page")
	}
	if screen.Flash.Error != MsgInvalidLogin {
		t.Fatalf("unexpected flash %+v", screen.Flash)
	}

	screen = f.controller.Dispatch(ctx, sess, Login("alice", "pw1"))
	if screen.Page != session.PageIntake || sess.Page != session.PageIntake {
		t.Fatalf("expected intake after login, got %q", screen.Page)
	}
	if screen.Agent != "Alice Agent" || !reflect.DeepEqual(screen.Addresses, []string{"100 Main St"}) {
		t.Fatalf("unexpected screen %+v", screen)
	}
	if screen.SelectedAddress != "100 Main St" {
		t.Fatalf("expected first address selected, got %q", screen.SelectedAddress)
	}
	if screen.Flash.Error != "" {
		t.Fatalf("stale flash after login: %+v", screen.Flash)
	}

	draft := session.Draft{Name: "Bob", Email: "b@x.com", Phone: "555-1234", NeedsRealtor: session.RealtorYes}
	screen = f.controller.Dispatch(ctx, sess, Submit("100 Main St", draft))
	if screen.Recorded == nil || screen.Flash.Notice != MsgRecorded {
		t.Fatalf("expected recorded submission, got %+v", screen)
	}
	rows, _ := f.gateway.Rows("sheet-123", "100 Main St")
	want := []string{"2024-05-01", "Bob", "b@x.com", "555-1234", "Yes", "", ""}
	if len(rows) != 2 || !reflect.DeepEqual(rows[0], HeaderRow) || !reflect.DeepEqual(rows[1], want) {
		t.Fatalf("rows = %v", rows)
	}
	if screen.Draft != session.NewDraft() || screen.SelectedAddress != "100 Main St" {
		t.Fatalf("draft not reset or address lost: %+v", screen)
	}
}

func TestDispatchGuardRejectsUnauthenticatedIntake(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "100 Main St")
	sess := newSession(t)
	sess.Page = session.PageIntake

	draft := session.Draft{Name: "Bob", Email: "b@x.com", Phone: "555", NeedsRealtor: session.RealtorYes}
	screen := f.controller.Dispatch(ctx, sess, Submit("100 Main St", draft))
	assertGuard(t, sess)
	if screen.Page != session.PageLogin || screen.Flash.Error != MsgMustLogIn {
		t.Fatalf("unexpected screen %+v", screen)
	}
	if _, ok := f.gateway.Rows("sheet-123", "100 Main St"); ok {
		t.Fatal("unauthenticated submit touched the spreadsheet")
	}
}

func TestDispatchUnknownPage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "100 Main St")

	sess := loggedIn(t)
	sess.Page = session.Page("admin")
	screen := f.controller.Dispatch(ctx, sess, View())
	if screen.Page != session.PageLogin || sess.Page != session.PageLogin {
		t.Fatalf("unknown page not reset: %+v", screen)
	}
	if screen.Flash.Error != MsgPageNotFound {
		t.Fatalf("unexpected flash %+v", screen.Flash)
	}
	if sess.Authenticated() {
		t.Fatal("unknown page should require a fresh login")
	}

	anon := newSession(t)
	anon.Page = session.Page("admin")
	screen = f.controller.Dispatch(ctx, anon, View())
	if screen.Flash.Error != MsgMustLogIn {
		t.Fatalf("unauthenticated unknown page should hit the login guard, got %+v", screen.Flash)
	}
}

func TestDispatchGuardHoldsForEveryAction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "100 Main St")
	actions := []Action{
		View(),
		Login("alice", "wrong"),
		SelectAddress("100 Main St"),
		Submit("100 Main St", session.Draft{Name: "Bob", Email: "b", Phone: "5"}),
		Logout(),
		{Kind: ActionKind(99)},
	}
	pages := []session.Page{session.PageLogin, session.PageIntake, session.Page(""), session.Page("bogus")}
	for _, page := range pages {
		for _, action := range actions {
			sess := newSession(t)
			sess.Page = page
			f.controller.Dispatch(ctx, sess, action)
			assertGuard(t, sess)
		}
	}
}

func TestDispatchEmptyAddressListHalts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess := newSession(t)

	screen := f.controller.Dispatch(ctx, sess, Login("alice", "pw1"))
	if screen.Page != session.PageIntake || !screen.Halted {
		t.Fatalf("expected halted intake page, got %+v", screen)
	}
	if screen.Flash.Error != MsgEmptyAddresses || len(screen.Addresses) != 0 {
		t.Fatalf("unexpected screen %+v", screen)
	}
}

func TestDispatchMissingMappingHalts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "100 Main St")
	sess := newSession(t)

	screen := f.controller.Dispatch(ctx, sess, Login("carol", "pw3"))
	if !screen.Halted {
		t.Fatalf("expected halted screen, got %+v", screen)
	}
	if want := "No spreadsheet is configured for Carol Closer. Please contact the admin."; screen.Flash.Error != want {
		t.Fatalf("flash = %q, want %q", screen.Flash.Error, want)
	}
}

func TestDispatchGatewayErrorIsGenericAndRecoverable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "100 Main St")
	sess := loggedIn(t)
	f.gateway.FailOn("column", errors.New("googleapi: Error 503"))

	screen := f.controller.Dispatch(ctx, sess, View())
	if screen.Halted || screen.Flash.Error != MsgGateway {
		t.Fatalf("unexpected screen %+v", screen)
	}

	f.gateway.FailOn("column", nil)
	screen = f.controller.Dispatch(ctx, sess, View())
	if screen.Flash.Error != "" || len(screen.Addresses) != 1 {
		t.Fatalf("expected recovery, got %+v", screen)
	}
}

func TestDispatchSelectAddress(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "100 Main St", "9 Elm Ave")
	sess := loggedIn(t)

	screen := f.controller.Dispatch(ctx, sess, SelectAddress("9 Elm Ave"))
	if screen.SelectedAddress != "9 Elm Ave" || sess.SelectedAddress != "9 Elm Ave" {
		t.Fatalf("address not selected: %+v", screen)
	}

	screen = f.controller.Dispatch(ctx, sess, SelectAddress("not listed"))
	if screen.SelectedAddress != "9 Elm Ave" {
		t.Fatalf("unlisted address accepted: %q", screen.SelectedAddress)
	}
}

func TestDispatchSubmitMissingFieldKeepsDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "100 Main St")
	sess := loggedIn(t)

	draft := session.Draft{Name: "Bob", Phone: "555", NeedsRealtor: session.RealtorNo}
	screen := f.controller.Dispatch(ctx, sess, Submit("100 Main St", draft))
	if screen.Flash.Warning != MsgRequiredFields || screen.Recorded != nil {
		t.Fatalf("unexpected screen %+v", screen)
	}
	if screen.Draft != draft {
		t.Fatalf("draft not kept: %+v", screen.Draft)
	}
	rows, _ := f.gateway.Rows("sheet-123", "100 Main St")
	if len(rows) != 1 {
		t.Fatalf("expected header only, got %v", rows)
	}
}

func TestDispatchLogout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "100 Main St")
	sess := loggedIn(t)
	sess.SelectedAddress = "100 Main St"

	screen := f.controller.Dispatch(ctx, sess, Logout())
	if screen.Page != session.PageLogin || sess.Authenticated() || sess.SelectedAddress != "" {
		t.Fatalf("logout incomplete: %+v", sess)
	}
}

func TestDispatchIgnoresForeignActions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "100 Main St")

	anon := newSession(t)
	screen := f.controller.Dispatch(ctx, anon, SelectAddress("100 Main St"))
	if screen.Page != session.PageLogin || anon.SelectedAddress != "" {
		t.Fatalf("login page applied an intake action: %+v", anon)
	}

	sess := loggedIn(t)
	screen = f.controller.Dispatch(ctx, sess, Login("carol", "pw3"))
	if screen.Page != session.PageIntake || sess.Agent != "Alice Agent" {
		t.Fatalf("intake page applied a login action: %+v", sess)
	}
}

func TestDispatchSubmitToRemovedAddressKeepsDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "100 Main St", "200 Oak Ave")
	sess := loggedIn(t)
	f.controller.Dispatch(ctx, sess, View())

	draft := session.Draft{Name: "Bob", Email: "b@x.com", Phone: "555", NeedsRealtor: session.RealtorNo}
	screen := f.controller.Dispatch(ctx, sess, Submit("300 Pine Rd", draft))
	if screen.Recorded != nil || screen.Flash.Notice != "" {
		t.Fatalf("submission to an unlisted address was recorded: %+v", screen)
	}
	if screen.Flash.Error != "Worksheet for '300 Pine Rd' is missing. Please contact the admin." {
		t.Fatalf("unexpected flash %+v", screen.Flash)
	}
	if screen.Draft != draft || sess.Draft != draft {
		t.Fatalf("draft not kept: %+v", screen.Draft)
	}
	for _, address := range []string{"100 Main St", "200 Oak Ave"} {
		if rows, _ := f.gateway.Rows("sheet-123", address); len(rows) != 1 {
			t.Fatalf("%s: expected header only, got %v", address, rows)
		}
	}
}

func TestDispatchHaltsOnWorksheetClash(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1/2 Main St", "1-2 Main St")
	sess := loggedIn(t)

	screen := f.controller.Dispatch(ctx, sess, View())
	if !screen.Halted {
		t.Fatalf("expected halted intake, got %+v", screen)
	}
	if screen.Flash.Error != "The addresses '1/2 Main St' and '1-2 Main St' would share a worksheet. Please contact the admin." {
		t.Fatalf("unexpected flash %+v", screen.Flash)
	}
	if titles := f.gateway.Titles("sheet-123"); !reflect.DeepEqual(titles, []string{AddressSheet}) {
		t.Fatalf("worksheets created despite clash: %v", titles)
	}
}
