package errs_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/ardanlabs/merklechain/business/web/errs"
	"github.com/ardanlabs/merklechain/foundation/validate"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func TestToResponse(t *testing.T) {
	errLink := errors.New("previous hash does not match")

	type table struct {
		name   string
		err    error
		status int
		msg    string
	}

	tt := []table{
		{name: "trusted", err: errs.NewTrusted(errLink, http.StatusConflict), status: http.StatusConflict, msg: errLink.Error()},
		{name: "fields", err: validate.FieldErrors{{Field: "transactions", Error: "required"}}, status: http.StatusBadRequest, msg: "data validation error"},
		{name: "untrusted", err: errors.New("disk on fire"), status: http.StatusInternalServerError, msg: http.StatusText(http.StatusInternalServerError)},
	}

	t.Log("Given the need to convert errors into API responses.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling a %s error.", testID, tst.name)
			{
				f := func(t *testing.T) {
					resp, status := errs.ToResponse(tst.err)
					if status != tst.status {
						t.Fatalf("\t%s\tTest %d:\tShould get status %d, got %d.", failed, testID, tst.status, status)
					}
					t.Logf("\t%s\tTest %d:\tShould get status %d.", success, testID, tst.status)

					if resp.Error != tst.msg {
						t.Fatalf("\t%s\tTest %d:\tShould get message %q, got %q.", failed, testID, tst.msg, resp.Error)
					}
					t.Logf("\t%s\tTest %d:\tShould get the expected message.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}

	t.Log("Given the need to match wrapped errors through a trusted error.")
	{
		err := errs.NewTrusted(errLink, http.StatusConflict)
		if !errors.Is(err, errLink) {
			t.Fatalf("\t%s\tShould be able to match the wrapped error.", failed)
		}
		t.Logf("\t%s\tShould be able to match the wrapped error.", success)
	}
}
