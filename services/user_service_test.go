package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/starkspartacus/ecompetition-sub002/models"
	"github.com/starkspartacus/ecompetition-sub002/services"
	"github.com/starkspartacus/ecompetition-sub002/storage"
)

type fakeUploader struct {
	mu      sync.Mutex
	objects map[string]string
	deleted []string
}

func (u *fakeUploader) Upload(_ context.Context, key, _ string, r io.Reader) (*storage.UploadResult, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.objects[key] = string(body)
	return &storage.UploadResult{Key: key}, nil
}

func (u *fakeUploader) Delete(_ context.Context, key string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.objects, key)
	u.deleted = append(u.deleted, key)
	return nil
}

func (u *fakeUploader) GetPublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

func strPtr(s string) *string { return &s }

var _ = Describe("UserService", func() {
	var f *fixture

	BeforeEach(func() {
		f = newFixture()
	})

	Describe("RegisterUser", func() {
		validInput := func() services.RegisterUserInput {
			return services.RegisterUserInput{
				Email:     "Jane.Doe@Example.com",
				Password:  "s3cret-pass",
				FirstName: "Jane",
				LastName:  "Doe",
			}
		}

		Specify("happy path", func() {
			user, err := f.users.RegisterUser(f.ctx, validInput())
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Email).To(Equal("jane.doe@example.com"))
			Expect(user.Role).To(Equal(models.RoleParticipant))
			Expect(user.PasswordHash).NotTo(BeEmpty())
			Expect(user.PasswordHash).NotTo(ContainSubstring("s3cret-pass"))
		})

		Specify("organizers can sign themselves up, admins cannot", func() {
			input := validInput()
			input.Role = models.RoleOrganizer
			user, err := f.users.RegisterUser(f.ctx, input)
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Role).To(Equal(models.RoleOrganizer))

			input.Email = "other@example.com"
			input.Role = models.RoleAdmin
			_, err = f.users.RegisterUser(f.ctx, input)
			Expect(err).To(MatchError(services.ErrInvalidRole))
		})

		Specify("missing fields are listed in order", func() {
			_, err := f.users.RegisterUser(f.ctx, services.RegisterUserInput{})
			var missing *services.MissingFieldsError
			Expect(errors.As(err, &missing)).To(BeTrue())
			Expect(missing.Fields).To(Equal([]string{"email", "password", "firstName", "lastName"}))
			Expect(errors.Is(err, services.ErrValidation)).To(BeTrue())

			_, err = f.users.RegisterUser(f.ctx, services.RegisterUserInput{Email: "a@b.co", LastName: "  "})
			Expect(errors.As(err, &missing)).To(BeTrue())
			Expect(missing.Fields).To(Equal([]string{"password", "firstName", "lastName"}))
		})

		Specify("sad path - malformed email", func() {
			input := validInput()
			input.Email = "not-an-email"
			_, err := f.users.RegisterUser(f.ctx, input)
			Expect(err).To(MatchError(services.ErrInvalidEmail))
		})

		Specify("sad path - short password", func() {
			input := validInput()
			input.Password = "short"
			_, err := f.users.RegisterUser(f.ctx, input)
			Expect(err).To(MatchError(services.ErrPasswordTooShort))
		})

		Specify("sad path - password longer than bcrypt accepts", func() {
			input := validInput()
			input.Password = strings.Repeat("p", 80)
			_, err := f.users.RegisterUser(f.ctx, input)
			Expect(err).To(MatchError(services.ErrPasswordTooLong))
			Expect(errors.Is(err, services.ErrValidation)).To(BeTrue())

			count, err := f.store.Users().CountByEmail(f.ctx, "jane.doe@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(BeZero())
		})

		Specify("duplicate email is rejected and leaves a single account", func() {
			_, err := f.users.RegisterUser(f.ctx, validInput())
			Expect(err).NotTo(HaveOccurred())

			again := validInput()
			again.Email = "JANE.DOE@example.com"
			_, err = f.users.RegisterUser(f.ctx, again)
			Expect(err).To(MatchError(services.ErrDuplicateEmail))
			Expect(errors.Is(err, services.ErrDuplicate)).To(BeTrue())

			count, err := f.store.Users().CountByEmail(f.ctx, "jane.doe@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(1))
		})

		Specify("phone numbers are normalized to E.164 with the country as region", func() {
			input := validInput()
			input.PhoneNumber = strPtr("06 12 34 56 78")
			input.Country = strPtr("fr")
			user, err := f.users.RegisterUser(f.ctx, input)
			Expect(err).NotTo(HaveOccurred())
			Expect(*user.PhoneNumber).To(Equal("+33612345678"))
			Expect(*user.Country).To(Equal("FR"))
		})

		Specify("the same phone in the same country is a duplicate", func() {
			first := validInput()
			first.PhoneNumber = strPtr("06 12 34 56 78")
			first.Country = strPtr("FR")
			_, err := f.users.RegisterUser(f.ctx, first)
			Expect(err).NotTo(HaveOccurred())

			second := validInput()
			second.Email = "someone.else@example.com"
			second.PhoneNumber = strPtr("+33 6 12 34 56 78")
			second.Country = strPtr("FR")
			_, err = f.users.RegisterUser(f.ctx, second)
			Expect(err).To(MatchError(services.ErrDuplicatePhone))
		})

		Specify("phone validation errors", func() {
			input := validInput()
			input.PhoneNumber = strPtr("0612345678")
			_, err := f.users.RegisterUser(f.ctx, input)
			Expect(err).To(MatchError(services.ErrCountryRequired))

			input.Country = strPtr("FRA")
			_, err = f.users.RegisterUser(f.ctx, input)
			Expect(err).To(MatchError(services.ErrInvalidCountry))

			input.Country = strPtr("FR")
			input.PhoneNumber = strPtr("12")
			_, err = f.users.RegisterUser(f.ctx, input)
			Expect(err).To(MatchError(services.ErrInvalidPhone))
		})
	})

	Describe("Login", func() {
		Specify("valid and invalid credentials", func() {
			actor := f.register(models.RoleParticipant)

			user, err := f.users.Login(f.ctx, models.Credentials{Email: "USER1@example.com", Password: "correct horse"})
			Expect(err).NotTo(HaveOccurred())
			Expect(user.ID).To(Equal(actor.UserID))

			_, err = f.users.Login(f.ctx, models.Credentials{Email: "user1@example.com", Password: "wrong horse"})
			Expect(err).To(MatchError(services.ErrInvalidCredentials))

			_, err = f.users.Login(f.ctx, models.Credentials{Email: "nobody@example.com", Password: "correct horse"})
			Expect(err).To(MatchError(services.ErrInvalidCredentials))

			_, err = f.users.Login(f.ctx, models.Credentials{Email: "user1@example.com", Password: strings.Repeat("p", 80)})
			Expect(err).To(MatchError(services.ErrInvalidCredentials))
		})
	})

	Describe("GetUser", func() {
		Specify("self and admin see the profile, others get not found", func() {
			owner := f.register(models.RoleParticipant)
			other := f.register(models.RoleParticipant)
			admin := f.register(models.RoleAdmin)

			_, err := f.users.GetUser(f.ctx, owner, owner.UserID)
			Expect(err).NotTo(HaveOccurred())
			_, err = f.users.GetUser(f.ctx, admin, owner.UserID)
			Expect(err).NotTo(HaveOccurred())
			_, err = f.users.GetUser(f.ctx, other, owner.UserID)
			Expect(err).To(MatchError(services.ErrUserNotFound))
		})
	})

	Describe("UpdateUser", func() {
		var owner models.Actor

		BeforeEach(func() {
			owner = f.register(models.RoleParticipant)
		})

		Specify("keys outside the allow-list are dropped", func() {
			user, err := f.users.UpdateUser(f.ctx, owner, owner.UserID, map[string]interface{}{
				"email":        "hijack@example.com",
				"role":         "ADMIN",
				"passwordHash": "x",
				"bio":          "  Left back  ",
				"city":         "Abidjan",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Email).To(Equal("user1@example.com"))
			Expect(user.Role).To(Equal(models.RoleParticipant))
			Expect(*user.Bio).To(Equal("Left back"))
			Expect(*user.City).To(Equal("Abidjan"))

			stored, err := f.store.Users().GetByID(f.ctx, owner.UserID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Email).To(Equal("user1@example.com"))
			Expect(*stored.Bio).To(Equal("Left back"))
		})

		Specify("null clears optional fields but not names", func() {
			_, err := f.users.UpdateUser(f.ctx, owner, owner.UserID, map[string]interface{}{"bio": "x"})
			Expect(err).NotTo(HaveOccurred())
			user, err := f.users.UpdateUser(f.ctx, owner, owner.UserID, map[string]interface{}{"bio": nil})
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Bio).To(BeNil())

			_, err = f.users.UpdateUser(f.ctx, owner, owner.UserID, map[string]interface{}{"firstName": nil})
			var missing *services.MissingFieldsError
			Expect(errors.As(err, &missing)).To(BeTrue())
			Expect(missing.Fields).To(Equal([]string{"firstName"}))
		})

		Specify("non-string values are rejected", func() {
			_, err := f.users.UpdateUser(f.ctx, owner, owner.UserID, map[string]interface{}{"city": 42.0})
			Expect(errors.Is(err, services.ErrValidation)).To(BeTrue())
		})

		Specify("phone uniqueness also holds on update", func() {
			other := f.register(models.RoleParticipant)
			_, err := f.users.UpdateUser(f.ctx, other, other.UserID, map[string]interface{}{
				"phoneNumber": "06 12 34 56 78",
				"country":     "FR",
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = f.users.UpdateUser(f.ctx, owner, owner.UserID, map[string]interface{}{
				"phoneNumber": "+33612345678",
				"country":     "fr",
			})
			Expect(err).To(MatchError(services.ErrDuplicatePhone))
		})

		Specify("other users cannot update the profile", func() {
			other := f.register(models.RoleParticipant)
			_, err := f.users.UpdateUser(f.ctx, other, owner.UserID, map[string]interface{}{"bio": "x"})
			Expect(err).To(MatchError(services.ErrUserNotFound))
		})
	})

	Describe("UploadPhoto", func() {
		Specify("without storage the upload is refused", func() {
			owner := f.register(models.RoleParticipant)
			_, err := f.users.UploadPhoto(f.ctx, owner, owner.UserID, "image/png", strings.NewReader("png"))
			Expect(err).To(MatchError(services.ErrPhotoUnavailable))
		})

		Specify("stores the object, replaces the previous photo and returns its URL", func() {
			uploader := &fakeUploader{objects: map[string]string{}}
			users := services.NewUserService(f.store, uploader, slog.New(slog.NewTextHandler(io.Discard, nil)))
			owner := f.register(models.RoleParticipant)

			first, err := users.UploadPhoto(f.ctx, owner, owner.UserID, "image/png", strings.NewReader("one"))
			Expect(err).NotTo(HaveOccurred())
			Expect(*first.Photo).To(HavePrefix("users/" + owner.UserID.String() + "/photo-"))
			Expect(*first.Photo).To(HaveSuffix(".png"))
			Expect(*first.PhotoURL).To(Equal("https://cdn.example.com/" + *first.Photo))
			firstKey := *first.Photo

			second, err := users.UploadPhoto(f.ctx, owner, owner.UserID, "image/jpeg", strings.NewReader("two"))
			Expect(err).NotTo(HaveOccurred())
			Expect(*second.Photo).To(HaveSuffix(".jpg"))
			Expect(uploader.deleted).To(ConsistOf(firstKey))
			Expect(uploader.objects).To(HaveLen(1))

			_, err = users.UploadPhoto(f.ctx, owner, owner.UserID, "application/pdf", strings.NewReader("pdf"))
			Expect(err).To(MatchError(services.ErrInvalidPhoto))
		})

		Specify("a failed profile update removes the uploaded object", func() {
			uploader := &fakeUploader{objects: map[string]string{}}
			users := services.NewUserService(f.store, uploader, slog.New(slog.NewTextHandler(io.Discard, nil)))
			owner := f.register(models.RoleParticipant)
			f.store.FailOn("users.Update", errors.New("disk full"))

			_, err := users.UploadPhoto(f.ctx, owner, owner.UserID, "image/webp", strings.NewReader("img"))
			Expect(errors.Is(err, services.ErrPersistence)).To(BeTrue())
			Expect(uploader.objects).To(BeEmpty())
			Expect(uploader.deleted).To(HaveLen(1))
		})
	})
})
