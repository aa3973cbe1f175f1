package authz

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Role hierarchy", func() {
	roleWithParent := func(id int64, parentID *int64) *Role {
		return &Role{ID: id, ParentID: parentID}
	}

	ptr := func(v int64) *int64 { return &v }

	Describe("expandEffectiveRoles", func() {
		It("includes every ancestor of a held role", func() {
			all := map[int64]*Role{
				1: roleWithParent(1, nil),
				2: roleWithParent(2, ptr(1)),
				3: roleWithParent(3, ptr(2)),
			}

			effective, err := expandEffectiveRoles([]int64{3}, all)
			Expect(err).NotTo(HaveOccurred())
			Expect(effective).To(ConsistOf(int64(3), int64(2), int64(1)))
		})

		It("deduplicates shared ancestors", func() {
			all := map[int64]*Role{
				1: roleWithParent(1, nil),
				2: roleWithParent(2, ptr(1)),
				3: roleWithParent(3, ptr(1)),
			}

			effective, err := expandEffectiveRoles([]int64{2, 3}, all)
			Expect(err).NotTo(HaveOccurred())
			Expect(effective).To(ConsistOf(int64(2), int64(1), int64(3)))
		})

		It("skips assignments to deleted roles", func() {
			all := map[int64]*Role{1: roleWithParent(1, nil)}

			effective, err := expandEffectiveRoles([]int64{1, 99}, all)
			Expect(err).NotTo(HaveOccurred())
			Expect(effective).To(ConsistOf(int64(1)))
		})

		It("terminates on corrupt cyclic data instead of looping", func() {
			all := map[int64]*Role{
				1: roleWithParent(1, ptr(2)),
				2: roleWithParent(2, ptr(1)),
			}

			effective, err := expandEffectiveRoles([]int64{1}, all)
			Expect(err).NotTo(HaveOccurred())
			Expect(effective).To(ConsistOf(int64(1), int64(2)))
		})

		It("errors past the depth bound", func() {
			all := map[int64]*Role{}
			for i := int64(1); i <= 8; i++ {
				if i == 1 {
					all[i] = roleWithParent(i, nil)
				} else {
					all[i] = roleWithParent(i, ptr(i-1))
				}
			}

			_, err := expandEffectiveRoles([]int64{8}, all)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("wouldCreateCycle", func() {
		It("rejects self-parenting", func() {
			cyclic, err := wouldCreateCycle(1, 1, map[int64]*Role{1: roleWithParent(1, nil)})
			Expect(err).NotTo(HaveOccurred())
			Expect(cyclic).To(BeTrue())
		})

		It("rejects a direct two-role loop", func() {
			all := map[int64]*Role{
				1: roleWithParent(1, nil),
				2: roleWithParent(2, ptr(1)),
			}

			// Role 2 already inherits from 1; making 1 a child of 2 loops.
			cyclic, err := wouldCreateCycle(1, 2, all)
			Expect(err).NotTo(HaveOccurred())
			Expect(cyclic).To(BeTrue())
		})

		It("rejects a transitive loop", func() {
			all := map[int64]*Role{
				1: roleWithParent(1, nil),
				2: roleWithParent(2, ptr(1)),
				3: roleWithParent(3, ptr(2)),
			}

			cyclic, err := wouldCreateCycle(1, 3, all)
			Expect(err).NotTo(HaveOccurred())
			Expect(cyclic).To(BeTrue())
		})

		It("accepts a legitimate reparent", func() {
			all := map[int64]*Role{
				1: roleWithParent(1, nil),
				2: roleWithParent(2, nil),
				3: roleWithParent(3, ptr(1)),
			}

			cyclic, err := wouldCreateCycle(3, 2, all)
			Expect(err).NotTo(HaveOccurred())
			Expect(cyclic).To(BeFalse())
		})

		It("errors on a missing parent", func() {
			_, err := wouldCreateCycle(1, 99, map[int64]*Role{1: roleWithParent(1, nil)})
			Expect(err).To(HaveOccurred())
		})
	})
})
