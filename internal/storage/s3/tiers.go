package s3

import (
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/scttfrdmn/cargoship/pkg/aws/config"
)

// S3 Storage Tier Constants
const (
	TierStandard          = "STANDARD"
	TierStandardIA        = "STANDARD_IA"
	TierOneZoneIA         = "ONEZONE_IA"
	TierReducedRedundancy = "REDUCED_REDUNDANCY"
	TierGlacierIR         = "GLACIER_IR"
	TierGlacier           = "GLACIER"
	TierDeepArchive       = "DEEP_ARCHIVE"
	TierIntelligent       = "INTELLIGENT_TIERING"
)

var validTiers = map[string]bool{
	TierStandard:          true,
	TierStandardIA:        true,
	TierOneZoneIA:         true,
	TierReducedRedundancy: true,
	TierGlacierIR:         true,
	TierGlacier:           true,
	TierDeepArchive:       true,
	TierIntelligent:       true,
}

// IsValidTier reports whether tier names a known storage tier.
func IsValidTier(tier string) bool {
	return validTiers[tier]
}

// convertTierToStorageClass converts our tier constants to AWS SDK storage class types
func convertTierToStorageClass(tier string) types.StorageClass {
	switch tier {
	case TierStandard:
		return types.StorageClassStandard
	case TierStandardIA:
		return types.StorageClassStandardIa
	case TierOneZoneIA:
		return types.StorageClassOnezoneIa
	case TierReducedRedundancy:
		return types.StorageClassReducedRedundancy
	case TierGlacierIR:
		return types.StorageClassGlacierIr
	case TierGlacier:
		return types.StorageClassGlacier
	case TierDeepArchive:
		return types.StorageClassDeepArchive
	case TierIntelligent:
		return types.StorageClassIntelligentTiering
	default:
		return types.StorageClassStandard
	}
}

// convertTierToCargoShipStorageClass converts our tier constants to CargoShip storage class types
func convertTierToCargoShipStorageClass(tier string) config.StorageClass {
	switch tier {
	case TierStandard, TierReducedRedundancy:
		return config.StorageClassStandard
	case TierStandardIA:
		return config.StorageClassStandardIA
	case TierOneZoneIA:
		return config.StorageClassOneZoneIA
	case TierGlacierIR, TierGlacier:
		// no instant-retrieval class in cargoship
		return config.StorageClassGlacier
	case TierDeepArchive:
		return config.StorageClassDeepArchive
	case TierIntelligent:
		return config.StorageClassIntelligentTiering
	default:
		return config.StorageClassStandard
	}
}
