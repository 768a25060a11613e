package arcdata

import (
	"context"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/utils/ptr"

	"github.com/microsoft/arcdata-cli/api/v1beta1"
	"github.com/microsoft/arcdata-cli/pkg/applyargs"
	"github.com/microsoft/arcdata-cli/pkg/kube"
	"github.com/microsoft/arcdata-cli/pkg/retry"
)

var _ = Describe("Postgres server group lifecycle", func() {
	var (
		ctx context.Context
		env *testEnv
	)

	BeforeEach(func() {
		ctx = context.TODO()
		env = newTestEnv(GinkgoT(), reportReady)
		_, err := env.handler.DataControllerCreate(ctx, DataControllerCreate{Name: "arc-dc"})
		Expect(err).NotTo(HaveOccurred())
	})

	It("creates, scales and deletes a server group", func() {
		_, err := env.handler.PostgresCreate(ctx, PostgresCreate{
			Name: "pg1",
			Args: applyargs.Postgres{Workers: ptr.To(int32(2)), Replicas: ptr.To(int32(2))},
		})
		Expect(err).NotTo(HaveOccurred())

		res := env.handler.Kube.GetObject(ctx, kube.PostgreSQLGVK, testNamespace, "pg1")
		Expect(res.Found()).To(BeTrue())
		workers, _, _ := unstructured.NestedInt64(res.Value.Object, "spec", "scale", "workers")
		Expect(workers).To(Equal(int64(2)))

		_, err = env.handler.PostgresEdit(ctx, PostgresEdit{Name: "pg1", Args: applyargs.Postgres{Replicas: ptr.To(int32(1))}})
		Expect(err).To(HaveOccurred())
		Expect(retry.Classify(err)).To(Equal(retry.KindValidation))

		changed, err := env.handler.PostgresEdit(ctx, PostgresEdit{Name: "pg1", Args: applyargs.Postgres{Workers: ptr.To(int32(3))}})
		Expect(err).NotTo(HaveOccurred())
		Expect(changed).To(BeTrue())

		rows, err := env.handler.PostgresList(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(1))

		Expect(env.handler.PostgresDelete(ctx, "pg1")).To(Succeed())
		Expect(env.handler.Kube.GetObject(ctx, kube.PostgreSQLGVK, testNamespace, "pg1").NotFound()).To(BeTrue())
	})

	It("lists the backups of a server group", func() {
		_, err := env.handler.PostgresCreate(ctx, PostgresCreate{Name: "pg1", NoWait: true})
		Expect(err).NotTo(HaveOccurred())
		env.handler.Controller = newControllerClient(GinkgoT(), func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"backups":[` + backupJSON("b-1", "first", 2) + `,` + backupJSON("b-2", "second", 1) + `]}`))
		})

		backups, err := env.handler.BackupList(ctx, "pg1")
		Expect(err).NotTo(HaveOccurred())
		Expect(backups).To(HaveLen(2))
		Expect(backups[0].ID()).To(Equal("b1"))
		Expect(backups[1].State().String()).To(Equal("Active"))
		Expect(env.out.String()).To(ContainSubstring("second"))
	})

	It("refuses a second data controller", func() {
		_, err := env.handler.DataControllerCreate(ctx, DataControllerCreate{Name: "arc-dc"})
		Expect(err).To(MatchError(ContainSubstring("already exists")))
		status, err := env.handler.DataControllerStatus(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Name).To(Equal("arc-dc"))
		Expect(v1beta1.DataControllerKind).To(Equal("datacontroller"))
	})
})
