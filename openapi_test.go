package main_test

import (
	"context"

	"github.com/getkin/kin-openapi/openapi3"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// The served contract at api/openapi.yml must stay a valid OpenAPI 3
// document and keep describing the routes the router registers. Handler
// behavior is covered in the package tests; this guards the document.
var _ = Describe("OpenAPI Contract", func() {
	var doc *openapi3.T

	BeforeEach(func() {
		loader := openapi3.NewLoader()
		var err error
		doc, err = loader.LoadFromFile("api/openapi.yml")
		Expect(err).NotTo(HaveOccurred())
	})

	It("validates against the OpenAPI 3 schema", func() {
		Expect(doc.Validate(context.Background())).To(Succeed())
	})

	It("describes the authentication endpoints", func() {
		Expect(doc.Paths.Find("/auth/login")).NotTo(BeNil())
		Expect(doc.Paths.Find("/auth/login").Post).NotTo(BeNil())
		Expect(doc.Paths.Find("/auth/refresh")).NotTo(BeNil())
		Expect(doc.Paths.Find("/auth/logout")).NotTo(BeNil())
	})

	It("describes role and permission management", func() {
		Expect(doc.Paths.Find("/roles")).NotTo(BeNil())
		Expect(doc.Paths.Find("/roles/{id}/parent").Put).NotTo(BeNil())
		perms := doc.Paths.Find("/roles/{id}/permissions")
		Expect(perms).NotTo(BeNil())
		Expect(perms.Post).NotTo(BeNil())
		Expect(perms.Delete).NotTo(BeNil())
		Expect(doc.Paths.Find("/users/{id}/roles").Post).NotTo(BeNil())
	})

	It("describes the matter lifecycle", func() {
		Expect(doc.Paths.Find("/matters").Post).NotTo(BeNil())
		Expect(doc.Paths.Find("/matters/{id}/status").Patch).NotTo(BeNil())
		Expect(doc.Paths.Find("/matters/{id}/assignments").Post).NotTo(BeNil())
	})

	It("describes expense submission and approval", func() {
		Expect(doc.Paths.Find("/expenses").Post).NotTo(BeNil())
		Expect(doc.Paths.Find("/expenses/{id}/approve").Patch).NotTo(BeNil())
		Expect(doc.Paths.Find("/expenses/{id}/reject").Patch).NotTo(BeNil())
	})

	It("describes the audit trail including CSV export", func() {
		Expect(doc.Paths.Find("/audit").Get).NotTo(BeNil())
		export := doc.Paths.Find("/audit/export")
		Expect(export).NotTo(BeNil())
		Expect(export.Get.Responses.Status(200).Value.Content).To(HaveKey("text/csv"))
	})

	It("secures data endpoints with bearer auth", func() {
		Expect(doc.Components.SecuritySchemes).To(HaveKey("bearerAuth"))
		get := doc.Paths.Find("/matters").Get
		Expect(get.Security).NotTo(BeNil())
	})
})
